// Package deploy schedules and observes bundle deployment jobs.
//
// The Deployer owns a FIFO queue of deployment jobs and two
// single-concurrency execution stages: one serializing bundle validations,
// one serializing the imports themselves. Progress is reported through
// per-deployment watchers as an append-only log of Change records, so any
// number of clients can follow a deployment without polling.
package deploy

// Status is the lifecycle state reported by a Change.
type Status string

// A deployment moves through scheduled -> started -> completed. There is no
// cancellation path: Cancel exists in the protocol but always fails.
const (
	StatusScheduled Status = "scheduled"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
)

// Change is an immutable deployment-status notification. Queue is a pointer
// so that position zero (the running slot) stays distinct from no position
// at all.
type Change struct {
	DeploymentID int    `json:"DeploymentId"`
	Status       Status `json:"Status"`
	Queue        *int   `json:"Queue,omitempty"`
	Error        string `json:"Error,omitempty"`
}

// NewChange returns a Change without a queue position.
func NewChange(deploymentID int, status Status, errText string) Change {
	return Change{
		DeploymentID: deploymentID,
		Status:       status,
		Error:        errText,
	}
}

// NewPositionChange returns a Change reporting a queue position: started
// for the running slot, scheduled for every position behind it.
func NewPositionChange(deploymentID, position int) Change {
	status := StatusStarted
	if position > 0 {
		status = StatusScheduled
	}
	queue := position
	return Change{
		DeploymentID: deploymentID,
		Status:       status,
		Queue:        &queue,
	}
}
