package transfer

import "time"

// Status is the lifecycle state of one transfer.
//
// Transitions move forward only:
//
//	pending → downloading → extracting → completed
//	pending/downloading → cancelled
//	pending/downloading/extracting → failed
//
// completed, failed, and cancelled are terminal.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusExtracting  Status = "extracting"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further snapshots follow this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Snapshot is an immutable progress observation for one transfer.
// Consumers observe a sequence of snapshots, not a single value.
type Snapshot struct {
	Status        Status
	BytesReceived int64

	// BytesTotal is 0 when the server did not report a content length;
	// fraction and ETA are then unknown, not zero.
	BytesTotal int64

	// BytesPerSec is smoothed over the interval since the previous
	// emitted snapshot, not a global average.
	BytesPerSec float64

	// Error carries the failure message for StatusFailed snapshots.
	Error string
}

// Fraction returns completion in [0, 1], or 0 when the total is unknown.
func (s Snapshot) Fraction() float64 {
	if s.BytesTotal <= 0 {
		return 0
	}
	return float64(s.BytesReceived) / float64(s.BytesTotal)
}

// ETA estimates the remaining transfer time. The second return is false
// when the total size or current throughput is unknown.
func (s Snapshot) ETA() (time.Duration, bool) {
	if s.BytesTotal <= 0 || s.BytesPerSec <= 0 {
		return 0, false
	}
	remaining := float64(s.BytesTotal - s.BytesReceived)
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining / s.BytesPerSec * float64(time.Second)), true
}
