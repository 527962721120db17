// Package supervisor owns the set of in-flight skin transfers. It
// enforces the concurrency ceiling, de-duplicates identical requests,
// bridges completed downloads into the package registry, and guarantees
// every task leaves the live set exactly once, at its terminal snapshot.
package supervisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Dymaic/KSkinManager/internal/registry"
	"github.com/Dymaic/KSkinManager/internal/transfer"
)

// DefaultMaxConcurrent is the transfer ceiling when Config leaves it 0.
const DefaultMaxConcurrent = 3

var (
	// ErrLimitReached indicates the concurrency ceiling rejected the
	// request. Reported synchronously at Start; nothing is queued.
	ErrLimitReached = errors.New("concurrent transfer limit reached")

	// ErrClosed indicates the supervisor has been shut down.
	ErrClosed = errors.New("supervisor closed")
)

// Config wires a Supervisor's collaborators.
type Config struct {
	// Engine performs the transfers. Required.
	Engine *transfer.Engine

	// Registry adopts extracted packages. Optional; without it completed
	// downloads are left extracted but unregistered.
	Registry *registry.Registry

	// DownloadDir is where archives are staged. Required.
	DownloadDir string

	// InstallRoot is where extracted packages land. Required when
	// StartOptions.Extract is used.
	InstallRoot string

	// MaxConcurrent caps live transfers; 0 means DefaultMaxConcurrent.
	MaxConcurrent int

	// Logger is optional.
	Logger *zap.Logger
}

// StartOptions controls one Start call.
type StartOptions struct {
	// Extract unpacks the archive and adopts it into the registry after
	// the download completes.
	Extract bool
}

// Supervisor tracks live transfers keyed by source URL.
type Supervisor struct {
	engine      *transfer.Engine
	reg         *registry.Registry
	downloadDir string
	installRoot string
	limit       int
	log         *zap.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

// task is one live transfer. Owned by the supervisor for its lifetime;
// the engine reports into it through the snapshot channel.
type task struct {
	id         string
	sourceURL  string
	destPath   string
	extractDir string
	cancel     context.CancelFunc

	mu        sync.Mutex
	latest    transfer.Snapshot
	hasLatest bool
	done      bool
	installed *registry.InstalledPackage
	subs      []chan transfer.Snapshot

	finalizeOnce sync.Once
}

// New creates a Supervisor from cfg.
func New(cfg Config) *Supervisor {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		engine:      cfg.Engine,
		reg:         cfg.Registry,
		downloadDir: cfg.DownloadDir,
		installRoot: cfg.InstallRoot,
		limit:       limit,
		log:         log,
		tasks:       make(map[string]*task),
	}
}

// TaskID derives the deterministic task identifier for a source URL.
// Identical URLs always collide onto the same id, which also keys the
// staged archive file so no two tasks share a destination path.
func TaskID(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])[:12]
}

// Start admits a transfer for sourceURL, or joins the one already in
// flight for it. Joining callers see the most recent snapshot followed
// by subsequent ones; history is not replayed. When the URL is new and
// the live set is at the ceiling, Start fails with ErrLimitReached.
func (s *Supervisor) Start(sourceURL string, opts StartOptions) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if t, ok := s.tasks[sourceURL]; ok {
		return &Handle{task: t, ch: t.subscribe()}, nil
	}
	if len(s.tasks) >= s.limit {
		return nil, fmt.Errorf("%w: %d live transfers", ErrLimitReached, len(s.tasks))
	}

	id := TaskID(sourceURL)
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:        id,
		sourceURL: sourceURL,
		destPath:  filepath.Join(s.downloadDir, id+".zip"),
		cancel:    cancel,
	}
	if opts.Extract {
		t.extractDir = filepath.Join(s.installRoot, id)
	}
	s.tasks[sourceURL] = t
	h := &Handle{task: t, ch: t.subscribe()}

	s.log.Info("transfer admitted",
		zap.String("url", sourceURL),
		zap.String("task_id", id),
		zap.Int("live", len(s.tasks)))
	go s.run(ctx, t)
	return h, nil
}

// run drives one task to its terminal snapshot. The deferred finalize is
// the single point where the live-map entry is released, reached on
// every exit path.
func (s *Supervisor) run(ctx context.Context, t *task) {
	defer s.finalize(t)

	if err := os.MkdirAll(s.downloadDir, 0755); err != nil {
		t.publish(transfer.Snapshot{
			Status: transfer.StatusFailed,
			Error:  fmt.Sprintf("io error: creating download dir: %v", err),
		})
		return
	}

	// Resume from whatever a previous attempt left behind.
	var resumeFrom int64
	if fi, err := os.Stat(t.destPath); err == nil {
		resumeFrom = fi.Size()
	}

	snaps := s.engine.Transfer(ctx, transfer.Request{
		SourceURL:  t.sourceURL,
		DestPath:   t.destPath,
		ResumeFrom: resumeFrom,
		ExtractTo:  t.extractDir,
	})
	for snap := range snaps {
		if snap.Status == transfer.StatusCompleted && t.extractDir != "" && s.reg != nil {
			snap = s.adopt(t, snap)
		}
		t.publish(snap)
		if snap.Status.Terminal() {
			return
		}
	}
}

// adopt bridges a completed, extracted download into the registry. The
// staged archive is deleted only once adoption confirms a valid
// manifest; on failure both archive and directory are retained for
// diagnosis and the task terminates Failed instead.
func (s *Supervisor) adopt(t *task, snap transfer.Snapshot) transfer.Snapshot {
	pkg, err := s.reg.Adopt(t.extractDir)
	if err != nil {
		s.log.Warn("adoption failed",
			zap.String("url", t.sourceURL),
			zap.Error(err))
		return transfer.Snapshot{
			Status:        transfer.StatusFailed,
			BytesReceived: snap.BytesReceived,
			BytesTotal:    snap.BytesTotal,
			Error:         fmt.Sprintf("adopting package: %v", err),
		}
	}
	t.mu.Lock()
	t.installed = pkg
	t.mu.Unlock()
	if err := os.Remove(t.destPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("removing staged archive",
			zap.String("path", t.destPath), zap.Error(err))
	}
	return snap
}

// finalize removes the task from the live set and closes subscriber
// channels, exactly once per task. If the engine never produced a
// terminal snapshot a Failed one is synthesized so consumers always see
// a terminating sequence.
func (s *Supervisor) finalize(t *task) {
	t.finalizeOnce.Do(func() {
		t.cancel()

		s.mu.Lock()
		delete(s.tasks, t.sourceURL)
		live := len(s.tasks)
		s.mu.Unlock()

		t.mu.Lock()
		if !t.done {
			t.publishLocked(transfer.Snapshot{
				Status: transfer.StatusFailed,
				Error:  "transfer ended without a terminal status",
			})
		}
		for _, ch := range t.subs {
			close(ch)
		}
		t.subs = nil
		status := t.latest.Status
		t.mu.Unlock()

		s.log.Info("transfer finalized",
			zap.String("url", t.sourceURL),
			zap.String("status", string(status)),
			zap.Int("live", live))
	})
}

// Cancel marks the live task for sourceURL cancelled and reports whether
// one was found. Cancelling an unknown URL is a no-op.
func (s *Supervisor) Cancel(sourceURL string) bool {
	s.mu.Lock()
	t, ok := s.tasks[sourceURL]
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// CancelAll cancels every live task and returns how many were cancelled.
func (s *Supervisor) CancelAll() int {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	return len(tasks)
}

// Close cancels all live tasks and rejects subsequent Start calls.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.CancelAll()
}

// IsActive reports whether a live task exists for sourceURL.
func (s *Supervisor) IsActive(sourceURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[sourceURL]
	return ok
}

// ActiveURLs returns the source URLs of all live tasks, sorted.
func (s *Supervisor) ActiveURLs() []string {
	s.mu.Lock()
	urls := make([]string, 0, len(s.tasks))
	for url := range s.tasks {
		urls = append(urls, url)
	}
	s.mu.Unlock()
	sort.Strings(urls)
	return urls
}

// LatestSnapshot returns the most recent snapshot for a live task.
func (s *Supervisor) LatestSnapshot(sourceURL string) (transfer.Snapshot, bool) {
	s.mu.Lock()
	t, ok := s.tasks[sourceURL]
	s.mu.Unlock()
	if !ok {
		return transfer.Snapshot{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.hasLatest
}

// subscribe registers a new conflating subscriber channel, seeded with
// the latest snapshot when one exists.
func (t *task) subscribe() <-chan transfer.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan transfer.Snapshot, 1)
	if t.hasLatest {
		ch <- t.latest
	}
	if t.done {
		close(ch)
		return ch
	}
	t.subs = append(t.subs, ch)
	return ch
}

// publish records snap as latest and delivers it to every subscriber.
// Channels conflate: a slow consumer sees the newest value, never a
// stale backlog, and always sees the terminal snapshot last.
func (t *task) publish(snap transfer.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishLocked(snap)
}

func (t *task) publishLocked(snap transfer.Snapshot) {
	t.latest = snap
	t.hasLatest = true
	if snap.Status.Terminal() {
		t.done = true
	}
	for _, ch := range t.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
