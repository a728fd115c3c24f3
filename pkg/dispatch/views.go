package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stevedore-dev/stevedore/pkg/bundle"
)

func errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

func paramString(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func paramInt(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// importBundle schedules a bundle deployment and returns its deployment id.
// The bundle is decoded and normalized, validated structurally, then
// validated against the live environment before entering the queue.
func (d *Dispatcher) importBundle(ctx context.Context, req *Request) (any, error) {
	params := bundle.ImportParams{
		Name:     paramString(req.Params, "Name"),
		YAML:     paramString(req.Params, "YAML"),
		BundleID: paramString(req.Params, "BundleID"),
	}
	if version, ok := paramInt(req.Params, "Version"); ok {
		params.Version = version
	}
	if params.YAML == "" && params.BundleID != "" && d.store != nil {
		content, err := d.store.Fetch(ctx, params.BundleID)
		if err != nil {
			return nil, errorf("invalid request: cannot retrieve bundle %s: %v",
				params.BundleID, err)
		}
		params.YAML = content
	}
	name, b, bundleID, err := bundle.ParseImportParams(params)
	if err != nil {
		return nil, errorf("invalid request: %v", err)
	}
	if err := bundle.Prepare(b); err != nil {
		return nil, errorf("invalid request: invalid bundle %s: %v", name, err)
	}
	if err := d.deployer.Validate(ctx, req.User, b); err != nil {
		return nil, errorf("invalid request: %v", err)
	}
	d.logger.Info("scheduling deployment", "bundle", name)
	deploymentID := d.deployer.ImportBundle(req.User, name, b, bundleID)
	return map[string]any{"DeploymentId": deploymentID}, nil
}

// watch returns a new watcher id observing the given deployment.
func (d *Dispatcher) watch(_ context.Context, req *Request) (any, error) {
	deploymentID, ok := paramInt(req.Params, "DeploymentId")
	if !ok {
		return nil, errorf("invalid request: invalid data parameters")
	}
	watcherID, ok := d.deployer.Watch(deploymentID)
	if !ok {
		return nil, errorf("invalid request: deployment not found")
	}
	d.logger.Info("deployment observed",
		"deployment", deploymentID, "watcher", watcherID)
	return map[string]any{"WatcherId": watcherID}, nil
}

// next suspends until the watched deployment has undelivered changes, then
// returns them all.
func (d *Dispatcher) next(ctx context.Context, req *Request) (any, error) {
	watcherID, ok := paramInt(req.Params, "WatcherId")
	if !ok {
		return nil, errorf("invalid request: invalid data parameters")
	}
	changes, ok := d.deployer.Next(ctx, watcherID)
	if !ok {
		return nil, errorf("invalid request: invalid watcher identifier")
	}
	return map[string]any{"Changes": changes}, nil
}

// cancel asks the deployer to drop a pending deployment. No deployment is
// currently cancellable; the deployer reports why.
func (d *Dispatcher) cancel(_ context.Context, req *Request) (any, error) {
	deploymentID, ok := paramInt(req.Params, "DeploymentId")
	if !ok {
		return nil, errorf("invalid request: invalid data parameters")
	}
	if err := d.deployer.Cancel(deploymentID); err != nil {
		return nil, errorf("invalid request: %v", err)
	}
	return nil, nil
}

// status returns the last known change of every deployment.
func (d *Dispatcher) status(_ context.Context, req *Request) (any, error) {
	if len(req.Params) != 0 {
		names := make([]string, 0, len(req.Params))
		for name := range req.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, errorf("invalid request: invalid data parameters: %s",
			strings.Join(names, ", "))
	}
	return map[string]any{"LastChanges": d.deployer.Status()}, nil
}

// getChangeSet returns the operations required to deploy a bundle, either
// recomputed from inline YAML or popped from a previously stored token.
func (d *Dispatcher) getChangeSet(_ context.Context, req *Request) (any, error) {
	if len(req.Params) > 1 {
		names := make([]string, 0, len(req.Params))
		for name := range req.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, errorf("invalid request: too many data parameters: %s",
			strings.Join(names, ", "))
	}
	if token := paramString(req.Params, "Token"); token != "" {
		changes, ok := d.tokens.Get(token)
		if !ok {
			return nil, errorf("unknown, fulfilled, or expired bundle token")
		}
		d.logger.Info("change set retrieved", "token", token)
		return map[string]any{"ChangeSet": changes}, nil
	}
	content := paramString(req.Params, "YAML")
	if content == "" {
		return nil, errorf("invalid request: expected YAML or Token to be provided")
	}
	changes, problems := bundle.ParseChangeSet(content)
	if len(problems) != 0 {
		return map[string]any{"Errors": problems}, nil
	}
	return map[string]any{"ChangeSet": changes}, nil
}

// setChangeSet computes and stores the change set for a bundle, returning a
// single-use token with its creation and expiry timestamps.
func (d *Dispatcher) setChangeSet(_ context.Context, req *Request) (any, error) {
	content := paramString(req.Params, "YAML")
	if content == "" {
		return nil, errorf("invalid request: bundle YAML not found")
	}
	changes, problems := bundle.ParseChangeSet(content)
	if len(problems) != 0 {
		return map[string]any{"Errors": problems}, nil
	}
	token, created, expires := d.tokens.Set(changes)
	d.logger.Info("change set stored", "token", token)
	return map[string]any{
		"Token":   token,
		"Created": created.UTC().Format(time.RFC3339),
		"Expires": expires.UTC().Format(time.RFC3339),
	}, nil
}
