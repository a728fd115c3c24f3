// Package dispatch serves the in-band "Deployer" sub-protocol: JSON frames
// that mimic a request/response exchange over the proxied WebSocket but are
// answered by this server instead of being forwarded. Each request names an
// operation and carries a parameter mapping; every response is an envelope
// of the shape {Response: <payload or {}>, Error?: <message>}.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stevedore-dev/stevedore/pkg/auth"
	"github.com/stevedore-dev/stevedore/pkg/bundle"
	"github.com/stevedore-dev/stevedore/pkg/deploy"
)

const tracerName = "stevedore/dispatch"

// Deployer is the scheduling surface the dispatcher drives.
type Deployer interface {
	Validate(ctx context.Context, user *auth.User, b *bundle.Bundle) error
	ImportBundle(user *auth.User, name string, b *bundle.Bundle, bundleID string) int
	Watch(deploymentID int) (int, bool)
	Next(ctx context.Context, watcherID int) ([]deploy.Change, bool)
	Cancel(deploymentID int) error
	Status() []deploy.Change
}

// BundleStore resolves a bundle id to its YAML content.
type BundleStore interface {
	Fetch(ctx context.Context, bundleID string) (string, error)
}

// Request is one decoded sub-protocol request.
type Request struct {
	Params map[string]any
	User   *auth.User
}

type view func(ctx context.Context, req *Request) (any, error)

// Dispatcher routes named operations to their handlers.
type Dispatcher struct {
	deployer Deployer
	tokens   *deploy.TokenStore
	store    BundleStore
	logger   *slog.Logger
	tracer   trace.Tracer
	views    map[string]view
}

// Options configures a Dispatcher.
type Options struct {
	Deployer Deployer
	Tokens   *deploy.TokenStore

	// Store, when set, lets Import requests reference a published bundle
	// by id instead of inlining its YAML.
	Store BundleStore

	Logger *slog.Logger
}

// New returns a Dispatcher for the given deployer and token store.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		deployer: opts.Deployer,
		tokens:   opts.Tokens,
		store:    opts.Store,
		logger:   logger.With("component", "dispatch"),
		tracer:   otel.Tracer(tracerName),
	}
	d.views = map[string]view{
		"Import":       d.importBundle,
		"Watch":        d.watch,
		"Next":         d.next,
		"Cancel":       d.cancel,
		"Status":       d.status,
		"GetChangeSet": d.getChangeSet,
		"SetChangeSet": d.setChangeSet,
	}
	return d
}

// The change-set operations work on client-supplied content only and never
// touch the controller, so they are exempt from the authentication guard.
var authExempt = map[string]bool{
	"GetChangeSet": true,
	"SetChangeSet": true,
}

// Recognize reports whether the frame is a sub-protocol request rather than
// controller traffic to be proxied.
func (d *Dispatcher) Recognize(msg auth.Message) bool {
	if msg["Type"] != "Deployer" {
		return false
	}
	_, ok := msg["Request"].(string)
	return ok
}

// Serve handles one sub-protocol frame and returns the encoded response
// envelope. It may suspend (Next does, until a change arrives) and is meant
// to run on its own goroutine.
func (d *Dispatcher) Serve(ctx context.Context, user *auth.User, msg auth.Message) []byte {
	name, _ := msg["Request"].(string)
	params, _ := msg["Params"].(map[string]any)

	ctx, span := d.tracer.Start(ctx, "deployer."+name,
		trace.WithAttributes(attribute.String("deployer.request", name)))
	defer span.End()

	payload, err := d.serve(ctx, name, &Request{Params: params, User: user})
	envelope := map[string]any{}
	if requestID, ok := msg["RequestId"]; ok {
		envelope["RequestId"] = requestID
	}
	if err != nil {
		d.logger.Error("deployer: " + err.Error())
		span.SetStatus(codes.Error, err.Error())
		envelope["Response"] = map[string]any{}
		envelope["Error"] = err.Error()
	} else {
		if payload == nil {
			payload = map[string]any{}
		}
		envelope["Response"] = payload
	}
	encoded, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		d.logger.Error("deployer: cannot encode response", "error", marshalErr)
		return []byte(`{"Response":{},"Error":"internal error"}`)
	}
	return encoded
}

func (d *Dispatcher) serve(ctx context.Context, name string, req *Request) (any, error) {
	handler, ok := d.views[name]
	if !ok {
		return nil, errorf("invalid request: unknown request %q", name)
	}
	if !authExempt[name] && !req.User.Authenticated {
		return nil, errorf("unauthorized access: no user logged in")
	}
	return handler(ctx, req)
}
