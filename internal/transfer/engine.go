// Package transfer streams remote skin archives to disk, reporting
// progress as a sequence of Snapshots.
//
// A transfer resumes from a byte offset via an HTTP Range request,
// appends to the partially written destination file, and optionally
// hands the finished archive to the extractor before completing.
// Cancellation is cooperative through the caller's context; partial
// output is retained so a later attempt can resume.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Dymaic/KSkinManager/internal/archive"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 30 * time.Second
	defaultEmitInterval   = 500 * time.Millisecond
	copyBufferSize        = 32 * 1024
)

// Request describes one transfer attempt.
type Request struct {
	// SourceURL is the archive to fetch.
	SourceURL string

	// DestPath is the file streamed bytes are written to.
	DestPath string

	// ResumeFrom is the byte offset already present in DestPath. When
	// positive, a Range request is issued and the file is appended to.
	ResumeFrom int64

	// ExtractTo, when non-empty, is the directory the archive is
	// unpacked into after the download finishes.
	ExtractTo string
}

// Engine performs transfers. It is safe for concurrent use; each
// Transfer call runs independently.
type Engine struct {
	client         *http.Client
	connectTimeout time.Duration
	readTimeout    time.Duration
	emitInterval   time.Duration
	log            *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient replaces the default HTTP client (tests inject the
// httptest server's client here).
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithConnectTimeout bounds connection establishment and response
// headers. Ignored when a custom HTTP client is supplied.
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Engine) { e.connectTimeout = d }
}

// WithReadTimeout bounds each body read; a stalled stream fails rather
// than hanging.
func WithReadTimeout(d time.Duration) Option {
	return func(e *Engine) { e.readTimeout = d }
}

// WithEmitInterval sets the minimum spacing between streamed progress
// snapshots. The final snapshot is always emitted regardless.
func WithEmitInterval(d time.Duration) Option {
	return func(e *Engine) { e.emitInterval = d }
}

// WithLogger attaches a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		connectTimeout: defaultConnectTimeout,
		readTimeout:    defaultReadTimeout,
		emitInterval:   defaultEmitInterval,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: e.connectTimeout,
				}).DialContext,
				ResponseHeaderTimeout: e.connectTimeout,
			},
		}
	}
	return e
}

// Probe issues a HEAD request and reports the resource size (0 when the
// server does not advertise one) and whether byte-range resume is
// supported.
func (e *Engine) Probe(ctx context.Context, sourceURL string) (size int64, resumable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, sourceURL, nil)
	if err != nil {
		return 0, false, newError(KindNetwork, "creating request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, false, newError(KindNetwork, "probing %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false, newError(KindProtocol, "unexpected status: %s", resp.Status)
	}
	if resp.ContentLength > 0 {
		size = resp.ContentLength
	}
	resumable = resp.Header.Get("Accept-Ranges") == "bytes"
	return size, resumable, nil
}

// Transfer starts the download described by req and returns the channel
// its progress snapshots are delivered on. The channel terminates with
// exactly one terminal snapshot and is then closed, on every path.
//
// Each call is an independent attempt; the returned sequence is consumed
// start to finish and cannot be restarted mid-flight.
func (e *Engine) Transfer(ctx context.Context, req Request) <-chan Snapshot {
	out := make(chan Snapshot, 8)
	go func() {
		defer close(out)
		e.run(ctx, req, out)
	}()
	return out
}

func (e *Engine) run(ctx context.Context, req Request, out chan<- Snapshot) {
	out <- Snapshot{Status: StatusPending}

	received := req.ResumeFrom

	fail := func(terr *Error) {
		e.log.Warn("transfer failed",
			zap.String("url", req.SourceURL),
			zap.String("kind", terr.Kind.String()),
			zap.Error(terr.Err))
		out <- Snapshot{
			Status:        StatusFailed,
			BytesReceived: received,
			Error:         terr.Error(),
		}
	}
	cancelled := func() {
		e.log.Info("transfer cancelled",
			zap.String("url", req.SourceURL),
			zap.Int64("bytes", received))
		// Partial output stays on disk for a future resume.
		out <- Snapshot{Status: StatusCancelled, BytesReceived: received}
	}

	// The watchdog cancels this derived context when a body read stalls;
	// timedOut tells that apart from an external cancellation.
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var timedOut atomic.Bool

	httpReq, err := http.NewRequestWithContext(cctx, http.MethodGet, req.SourceURL, nil)
	if err != nil {
		fail(newError(KindNetwork, "creating request: %w", err))
		return
	}
	if req.ResumeFrom > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", req.ResumeFrom))
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			cancelled()
			return
		}
		fail(newError(KindNetwork, "requesting %s: %w", req.SourceURL, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		fail(newError(KindProtocol, "unexpected status: %s", resp.Status))
		return
	}
	// A 200 to a ranged request means the server restarted from zero.
	if req.ResumeFrom > 0 && resp.StatusCode == http.StatusOK {
		received = 0
	}

	var total int64
	if resp.ContentLength > 0 {
		total = resp.ContentLength + received
	}

	flags := os.O_CREATE | os.O_WRONLY
	if received > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(req.DestPath, flags, 0644)
	if err != nil {
		fail(newError(KindIO, "opening destination: %w", err))
		return
	}
	defer f.Close()

	e.log.Debug("transfer established",
		zap.String("url", req.SourceURL),
		zap.Int64("resume_from", req.ResumeFrom),
		zap.Int64("total", total),
		zap.Int("status", resp.StatusCode))
	out <- Snapshot{Status: StatusDownloading, BytesReceived: received, BytesTotal: total}

	watchdog := time.AfterFunc(e.readTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	buf := make([]byte, copyBufferSize)
	lastEmit := time.Now()
	lastBytes := received
	for {
		n, readErr := resp.Body.Read(buf)
		watchdog.Reset(e.readTimeout)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				fail(newError(KindIO, "writing destination: %w", werr))
				return
			}
			received += int64(n)
			if now := time.Now(); now.Sub(lastEmit) >= e.emitInterval {
				out <- Snapshot{
					Status:        StatusDownloading,
					BytesReceived: received,
					BytesTotal:    total,
					BytesPerSec:   rate(received-lastBytes, now.Sub(lastEmit)),
				}
				lastEmit, lastBytes = now, received
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			switch {
			case timedOut.Load():
				fail(newError(KindNetwork, "read timeout after %s: %w", e.readTimeout, readErr))
			case ctx.Err() != nil:
				cancelled()
			default:
				fail(newError(KindNetwork, "reading body: %w", readErr))
			}
			return
		}
	}
	watchdog.Stop()

	if err := f.Close(); err != nil {
		fail(newError(KindIO, "closing destination: %w", err))
		return
	}

	// Forced final download snapshot so the last byte is always observed.
	out <- Snapshot{
		Status:        StatusDownloading,
		BytesReceived: received,
		BytesTotal:    total,
		BytesPerSec:   rate(received-lastBytes, time.Since(lastEmit)),
	}

	if req.ExtractTo != "" {
		if ctx.Err() != nil {
			cancelled()
			return
		}
		out <- Snapshot{Status: StatusExtracting, BytesReceived: received, BytesTotal: total}
		if err := archive.Extract(req.DestPath, req.ExtractTo); err != nil {
			// The archive stays on disk for diagnosis.
			fail(newError(KindArchive, "extracting %s: %w", req.DestPath, err))
			return
		}
	}

	e.log.Info("transfer completed",
		zap.String("url", req.SourceURL),
		zap.Int64("bytes", received))
	out <- Snapshot{Status: StatusCompleted, BytesReceived: received, BytesTotal: total}
}

func rate(bytes int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs < 0.001 {
		secs = 0.001
	}
	return float64(bytes) / secs
}
