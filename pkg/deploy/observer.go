package deploy

import "sort"

// observer allocates deployment and watcher identifiers and fans change
// notifications out to the per-deployment watchers. It is not safe for
// concurrent use; the Deployer serializes access under its own mutex.
type observer struct {
	// deployments maps deployment ids to their watchers; entries are
	// never removed, so completed deployments stay visible to Status.
	deployments map[int]*Watcher
	// watchers maps observer ids back to deployment ids.
	watchers map[int]int

	nextDeployment int
	nextWatcher    int
}

func newObserver() *observer {
	return &observer{
		deployments: make(map[int]*Watcher),
		watchers:    make(map[int]int),
	}
}

// addDeployment starts observing a new deployment and returns its id.
// Ids are issued from a monotonically increasing counter starting at 0.
func (o *observer) addDeployment() int {
	id := o.nextDeployment
	o.nextDeployment++
	o.deployments[id] = newWatcher()
	return id
}

// addWatcher registers a new observer of the given deployment and returns
// the observer id. A fresh observer receives the full change history.
func (o *observer) addWatcher(deploymentID int) int {
	id := o.nextWatcher
	o.nextWatcher++
	o.watchers[id] = deploymentID
	return id
}

// notifyPosition records a queue-position change for a deployment.
func (o *observer) notifyPosition(deploymentID, position int) {
	o.deployments[deploymentID].Put(NewPositionChange(deploymentID, position))
}

// notifyCompleted records the terminal change for a deployment and closes
// its watcher. A non-empty errText marks the deployment failed.
func (o *observer) notifyCompleted(deploymentID int, errText string) {
	o.deployments[deploymentID].Close(
		NewChange(deploymentID, StatusCompleted, errText))
}

// lastChanges returns the most recent change of every deployment ever
// observed, ordered by deployment id.
func (o *observer) lastChanges() []Change {
	ids := make([]int, 0, len(o.deployments))
	for id := range o.deployments {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	changes := make([]Change, 0, len(ids))
	for _, id := range ids {
		if change, ok := o.deployments[id].Last(); ok {
			changes = append(changes, change)
		}
	}
	return changes
}
