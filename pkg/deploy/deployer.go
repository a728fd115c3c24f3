package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stevedore-dev/stevedore/pkg/auth"
	"github.com/stevedore-dev/stevedore/pkg/bundle"
)

// SupportedAPIVersions lists the controller API versions the Deployer can
// drive. The legacy API has no bundle support.
var SupportedAPIVersions = []string{"rpc"}

// BlockingFunc performs slow controller-bound work on behalf of the
// Deployer. The password authenticates the short-lived controller client.
type BlockingFunc func(ctx context.Context, apiURL, password, name string, b *bundle.Bundle) error

// Options configures a Deployer.
type Options struct {
	// APIURL is the controller WebSocket endpoint.
	APIURL string

	// APIVersion selects the controller API dialect.
	APIVersion string

	// ValidateBundle checks a bundle against the live environment.
	ValidateBundle BlockingFunc

	// ImportBundle executes a deployment.
	ImportBundle BlockingFunc

	// OnChange, when set, observes every recorded change. Called outside
	// the Deployer lock.
	OnChange func(Change)

	Logger *slog.Logger
}

// Deployer owns the deployment queue, the two single-concurrency stages and
// the watcher registry. One instance is shared by every session; it keeps
// no per-request state.
type Deployer struct {
	opts   Options
	logger *slog.Logger

	// validate serializes environment validations, run serializes the
	// imports themselves: at most one bundle ever runs against the
	// controller.
	validate *stage
	run      *stage

	mu       sync.Mutex
	observer *observer
	queue    []int
}

// New returns a started Deployer.
func New(opts Options) *Deployer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		opts:     opts,
		logger:   logger.With("component", "deployer"),
		validate: newStage(),
		run:      newStage(),
		observer: newObserver(),
	}
}

// Shutdown stops both stages after the queued jobs have drained.
func (d *Deployer) Shutdown() {
	d.validate.close()
	d.run.close()
}

// Validate checks the bundle against the current state of the environment,
// on the dedicated validation stage. The result is an error string in the
// protocol sense: controller failures are captured, not propagated.
func (d *Deployer) Validate(ctx context.Context, user *auth.User, b *bundle.Bundle) error {
	if !d.apiSupported() {
		return fmt.Errorf("unsupported API version")
	}
	done := make(chan error, 1)
	password := user.Password
	d.validate.submit(func() {
		done <- d.opts.ValidateBundle(ctx, d.opts.APIURL, password, "", b)
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ImportBundle schedules a bundle import and synchronously returns the
// deployment id assigned to it. The initial change reports the job's queue
// position; the validate+import work itself runs later on the run stage.
func (d *Deployer) ImportBundle(user *auth.User, name string, b *bundle.Bundle, bundleID string) int {
	d.mu.Lock()
	id := d.observer.addDeployment()
	position := len(d.queue)
	d.queue = append(d.queue, id)
	change := NewPositionChange(id, position)
	d.observer.deployments[id].Put(change)
	d.mu.Unlock()
	d.changed(change)

	password := user.Password
	d.run.submit(func() {
		err := d.opts.ImportBundle(
			context.Background(), d.opts.APIURL, password, name, b)
		d.importDone(id, err)
	})
	d.logger.Info("deployment scheduled",
		"deployment", id, "bundle", name, "position", position)
	return id
}

// importDone records the terminal change, removes the job from the queue
// and re-notifies every remaining queued deployment of its new position.
func (d *Deployer) importDone(id int, err error) {
	errText := ""
	if err != nil {
		errText = err.Error()
	}

	d.mu.Lock()
	d.observer.notifyCompleted(id, errText)
	for i, queued := range d.queue {
		if queued == id {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			break
		}
	}
	notified := make([]Change, 0, len(d.queue)+1)
	notified = append(notified, NewChange(id, StatusCompleted, errText))
	for position, queued := range d.queue {
		d.observer.notifyPosition(queued, position)
		notified = append(notified, NewPositionChange(queued, position))
	}
	d.mu.Unlock()

	for _, change := range notified {
		d.changed(change)
	}
	if errText != "" {
		d.logger.Error("deployment failed", "deployment", id, "error", errText)
	} else {
		d.logger.Info("deployment completed", "deployment", id)
	}
}

// Watch registers a new observer of the given deployment and returns its
// watcher id. The second return value is false for unknown deployments.
func (d *Deployer) Watch(deploymentID int) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.observer.deployments[deploymentID]; !ok {
		return 0, false
	}
	return d.observer.addWatcher(deploymentID), true
}

// Next suspends until the watched deployment has at least one change the
// observer has not seen, then returns them all in arrival order. The second
// return value is false for unknown or exhausted watcher ids.
func (d *Deployer) Next(ctx context.Context, watcherID int) ([]Change, bool) {
	d.mu.Lock()
	deploymentID, ok := d.observer.watchers[watcherID]
	if !ok {
		d.mu.Unlock()
		return nil, false
	}
	watcher := d.observer.deployments[deploymentID]
	d.mu.Unlock()

	changes, err := watcher.Next(ctx, watcherID)
	if err != nil {
		return nil, false
	}
	return changes, true
}

// Cancel is a protocol placeholder: no code path dequeues or aborts a job,
// so every deployment is reported as not cancellable.
func (d *Deployer) Cancel(deploymentID int) error {
	return fmt.Errorf("deployment not found or already started")
}

// Status returns the last known change of every deployment ever seen,
// completed ones included.
func (d *Deployer) Status() []Change {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.observer.lastChanges()
}

// QueueLength returns the number of scheduled or running deployments.
func (d *Deployer) QueueLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Deployer) apiSupported() bool {
	for _, version := range SupportedAPIVersions {
		if d.opts.APIVersion == version {
			return true
		}
	}
	return false
}

func (d *Deployer) changed(change Change) {
	if d.opts.OnChange != nil {
		d.opts.OnChange(change)
	}
}
