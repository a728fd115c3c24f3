// Package store fetches published bundle archives from S3-compatible
// object storage, for Import requests that reference a bundle id instead of
// inlining YAML content.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BundleStore reads bundle YAML from an S3 bucket. Bundle ids of the form
// "~user/name" map to the object key "<prefix>user/name/bundle.yaml".
type BundleStore struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// Options configures a BundleStore.
type Options struct {
	// Bucket is the bucket holding published bundles.
	Bucket string

	// Prefix is prepended to every object key (e.g. "bundles/").
	Prefix string

	// Region is the bucket's region.
	Region string

	// Credentials provides static credentials; anonymous access is used
	// when nil.
	Credentials aws.CredentialsProvider

	Logger *slog.Logger
}

// New returns a BundleStore on the configured bucket.
func New(opts Options) *BundleStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	credentials := opts.Credentials
	if credentials == nil {
		credentials = aws.AnonymousCredentials{}
	}
	client := s3.New(s3.Options{
		Region:      opts.Region,
		Credentials: credentials,
	})
	return &BundleStore{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		logger: logger.With("component", "bundle-store"),
	}
}

// Fetch returns the YAML content of the bundle with the given id.
func (s *BundleStore) Fetch(ctx context.Context, bundleID string) (string, error) {
	key, err := s.key(bundleID)
	if err != nil {
		return "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("fetch bundle %s: %w", bundleID, err)
	}
	defer out.Body.Close()
	content, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read bundle %s: %w", bundleID, err)
	}
	s.logger.Info("bundle fetched", "bundle", bundleID, "bytes", len(content))
	return string(content), nil
}

func (s *BundleStore) key(bundleID string) (string, error) {
	id := strings.TrimPrefix(bundleID, "~")
	if id == "" || strings.Contains(id, "..") || !strings.Contains(id, "/") {
		return "", fmt.Errorf("invalid bundle id %q", bundleID)
	}
	return s.prefix + id + "/bundle.yaml", nil
}
