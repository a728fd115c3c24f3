package deploy

import (
	"encoding/json"
	"testing"
)

func TestChangeRoundTrip(t *testing.T) {
	queue := 47
	change := Change{
		DeploymentID: 3,
		Status:       StatusCompleted,
		Queue:        &queue,
		Error:        "an error",
	}
	encoded, err := json.Marshal(change)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	want := `{"DeploymentId":3,"Status":"completed","Queue":47,"Error":"an error"}`
	if string(encoded) != want {
		t.Errorf("encoded = %s, want %s", encoded, want)
	}

	var decoded Change
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if decoded.DeploymentID != 3 || decoded.Status != StatusCompleted {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Queue == nil || *decoded.Queue != 47 {
		t.Errorf("decoded queue = %v, want 47", decoded.Queue)
	}
	if decoded.Error != "an error" {
		t.Errorf("decoded error = %q", decoded.Error)
	}
}

func TestChangeOmitsEmptyFields(t *testing.T) {
	encoded, err := json.Marshal(NewChange(0, StatusCompleted, ""))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	want := `{"DeploymentId":0,"Status":"completed"}`
	if string(encoded) != want {
		t.Errorf("encoded = %s, want %s", encoded, want)
	}
}

func TestNewPositionChange(t *testing.T) {
	// Position zero is the running slot.
	change := NewPositionChange(1, 0)
	if change.Status != StatusStarted {
		t.Errorf("status = %q, want started", change.Status)
	}
	if change.Queue == nil || *change.Queue != 0 {
		t.Errorf("queue = %v, want 0", change.Queue)
	}

	change = NewPositionChange(1, 3)
	if change.Status != StatusScheduled {
		t.Errorf("status = %q, want scheduled", change.Status)
	}
	if change.Queue == nil || *change.Queue != 3 {
		t.Errorf("queue = %v, want 3", change.Queue)
	}
}
