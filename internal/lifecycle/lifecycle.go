// Package lifecycle holds the process status reported by /health.
package lifecycle

import "sync/atomic"

// Status is the process lifecycle stage.
type Status int32

const (
	Starting Status = iota
	Ready
	ShuttingDown
)

func (s Status) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var status atomic.Int32

// SetStatus records the current stage. Once ShuttingDown is set, only
// another SetStatus call can move the process out of it.
func SetStatus(s Status) {
	status.Store(int32(s))
}

// CurrentStatus returns the stage last set, Starting by default.
func CurrentStatus() Status {
	return Status(status.Load())
}

// MarkReady moves Starting to Ready. It is a no-op once shutdown began.
func MarkReady() bool {
	return status.CompareAndSwap(int32(Starting), int32(Ready))
}

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return CurrentStatus() == ShuttingDown
}
