package lifecycle

import "testing"

func TestStatus_DefaultStarting(t *testing.T) {
	SetStatus(Starting)
	if got := CurrentStatus(); got != Starting {
		t.Errorf("CurrentStatus() = %v, want starting", got)
	}
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false")
	}
}

func TestMarkReady(t *testing.T) {
	SetStatus(Starting)
	defer SetStatus(Starting)

	if !MarkReady() {
		t.Fatal("MarkReady() = false from starting")
	}
	if got := CurrentStatus(); got != Ready {
		t.Errorf("CurrentStatus() = %v, want ready", got)
	}
}

func TestMarkReady_NoopAfterShutdown(t *testing.T) {
	SetStatus(ShuttingDown)
	defer SetStatus(Starting)

	if MarkReady() {
		t.Error("MarkReady() = true after shutdown began")
	}
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false, want true")
	}
}

func TestStatus_String(t *testing.T) {
	tests := map[Status]string{
		Starting:     "starting",
		Ready:        "ready",
		ShuttingDown: "shutting-down",
		Status(42):   "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
