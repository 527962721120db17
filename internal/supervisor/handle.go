package supervisor

import (
	"github.com/Dymaic/KSkinManager/internal/registry"
	"github.com/Dymaic/KSkinManager/internal/transfer"
)

// Handle is a caller's view of one transfer: the snapshot sequence plus
// its cancellation control. Cancellation is part of the consumer
// contract, not a side-channel flag.
type Handle struct {
	task *task
	ch   <-chan transfer.Snapshot
}

// ID returns the task identifier derived from the source URL.
func (h *Handle) ID() string { return h.task.id }

// SourceURL returns the URL this transfer fetches.
func (h *Handle) SourceURL() string { return h.task.sourceURL }

// Snapshots returns the progress sequence. It terminates with exactly
// one terminal snapshot and is then closed.
func (h *Handle) Snapshots() <-chan transfer.Snapshot { return h.ch }

// Cancel requests cooperative cancellation of the underlying task. Safe
// to call at any time, from any goroutine, including after completion.
func (h *Handle) Cancel() { h.task.cancel() }

// Wait drains the snapshot sequence and returns the terminal snapshot.
func (h *Handle) Wait() transfer.Snapshot {
	var last transfer.Snapshot
	for snap := range h.ch {
		last = snap
	}
	return last
}

// Installed returns the package adopted for this transfer, if it has
// completed and adoption succeeded.
func (h *Handle) Installed() (*registry.InstalledPackage, bool) {
	h.task.mu.Lock()
	defer h.task.mu.Unlock()
	return h.task.installed, h.task.installed != nil
}
