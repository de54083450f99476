package core

import "testing"

func TestStatus_CanResume(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusRunning, StatusCompleted, StatusError} {
		if s.CanResume() {
			t.Errorf("status %s must not accept a resume", s)
		}
	}
	if !StatusInterrupted.CanResume() {
		t.Error("interrupted must accept a resume")
	}
}

func TestStatus_Terminal(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusError.Terminal() {
		t.Error("completed and error are terminal")
	}
	if StatusIdle.Terminal() || StatusRunning.Terminal() || StatusInterrupted.Terminal() {
		t.Error("idle, running and interrupted are not terminal")
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("interrupted"); err != nil || s != StatusInterrupted {
		t.Fatalf("ParseStatus(interrupted) = %v, %v", s, err)
	}
	if _, err := ParseStatus("not_found"); err == nil {
		t.Error("not_found is a reporting value, not a storable status")
	}
	if _, err := ParseStatus("paused"); err == nil {
		t.Error("unknown status must be rejected")
	}
}

func TestTaskState_Valid(t *testing.T) {
	for _, s := range []TaskState{TaskPending, TaskCompleted, TaskFailed} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if TaskState("done").Valid() {
		t.Error("unknown task state should be invalid")
	}
}
