package transfer

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// collect drains a snapshot channel into a slice.
func collect(t *testing.T, ch <-chan Snapshot) []Snapshot {
	t.Helper()
	var snaps []Snapshot
	for snap := range ch {
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		t.Fatal("no snapshots emitted")
	}
	return snaps
}

// checkOrdering asserts forward-only statuses and non-decreasing byte
// counts across a snapshot sequence, with exactly one terminal snapshot
// in final position.
func checkOrdering(t *testing.T, snaps []Snapshot) {
	t.Helper()
	order := map[Status]int{
		StatusPending:     0,
		StatusDownloading: 1,
		StatusExtracting:  2,
		StatusCompleted:   3,
		StatusFailed:      3,
		StatusCancelled:   3,
	}
	for i := 1; i < len(snaps); i++ {
		if order[snaps[i].Status] < order[snaps[i-1].Status] {
			t.Errorf("status went backward: %s after %s", snaps[i].Status, snaps[i-1].Status)
		}
		if snaps[i].BytesReceived < snaps[i-1].BytesReceived {
			t.Errorf("bytesReceived decreased: %d after %d",
				snaps[i].BytesReceived, snaps[i-1].BytesReceived)
		}
	}
	for i, snap := range snaps {
		if snap.Status.Terminal() != (i == len(snaps)-1) {
			t.Fatalf("terminal snapshot at position %d of %d", i, len(snaps))
		}
	}
}

func newTestEngine(server *httptest.Server, opts ...Option) *Engine {
	// A zero interval emits a snapshot for every chunk read.
	opts = append([]Option{
		WithHTTPClient(server.Client()),
		WithEmitInterval(0),
	}, opts...)
	return New(opts...)
}

func TestTransferComplete(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Bodies larger than the server's 2048-byte pre-chunking buffer
		// are sent chunked unless Content-Length is set explicitly.
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.Write(body)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	e := newTestEngine(server)

	snaps := collect(t, e.Transfer(context.Background(), Request{
		SourceURL: server.URL,
		DestPath:  dest,
	}))
	checkOrdering(t, snaps)

	final := snaps[len(snaps)-1]
	if final.Status != StatusCompleted {
		t.Fatalf("final status = %s, want completed (%s)", final.Status, final.Error)
	}
	if final.BytesReceived != final.BytesTotal || final.BytesTotal != int64(len(body)) {
		t.Errorf("final bytes = %d/%d, want %d/%d",
			final.BytesReceived, final.BytesTotal, len(body), len(body))
	}
	if snaps[0].Status != StatusPending {
		t.Errorf("first snapshot = %s, want pending", snaps[0].Status)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, body) {
		t.Error("destination content does not match source")
	}
}

func TestTransferUnknownTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flush before writing the body so no Content-Length is set.
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Write([]byte("some bytes of unknown total length"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	e := newTestEngine(server)

	snaps := collect(t, e.Transfer(context.Background(), Request{
		SourceURL: server.URL,
		DestPath:  dest,
	}))
	final := snaps[len(snaps)-1]
	if final.Status != StatusCompleted {
		t.Fatalf("final status = %s (%s)", final.Status, final.Error)
	}
	if final.BytesTotal != 0 {
		t.Errorf("BytesTotal = %d, want 0 for unknown length", final.BytesTotal)
	}
	if final.Fraction() != 0 {
		t.Errorf("Fraction = %v, want 0 when total unknown", final.Fraction())
	}
	if _, ok := final.ETA(); ok {
		t.Error("ETA should be unavailable when total is unknown")
	}
}

func TestTransferResume(t *testing.T) {
	full := bytes.Repeat([]byte("abcdefgh"), 125) // 1000 bytes
	var gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		if !strings.HasPrefix(gotRange, "bytes=") {
			t.Errorf("expected a Range header, got %q", gotRange)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var from int
		fmt.Sscanf(gotRange, "bytes=%d-", &from)
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", from, len(full)-1, len(full)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(full[from:])
	}))
	defer server.Close()

	// A previous attempt left the first 500 bytes behind.
	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, full[:500], 0644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(server)
	snaps := collect(t, e.Transfer(context.Background(), Request{
		SourceURL:  server.URL,
		DestPath:   dest,
		ResumeFrom: 500,
	}))
	checkOrdering(t, snaps)

	if gotRange != "bytes=500-" {
		t.Errorf("Range header = %q, want bytes=500-", gotRange)
	}
	final := snaps[len(snaps)-1]
	if final.Status != StatusCompleted {
		t.Fatalf("final status = %s (%s)", final.Status, final.Error)
	}
	if final.BytesReceived != 1000 || final.BytesTotal != 1000 {
		t.Errorf("final bytes = %d/%d, want 1000/1000", final.BytesReceived, final.BytesTotal)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, full) {
		t.Errorf("resumed file is %d bytes and differs from source", len(data))
	}
}

func TestTransferRangeIgnoredByServer(t *testing.T) {
	full := bytes.Repeat([]byte("z"), 800)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Plain 200: the server restarted from the beginning.
		w.Write(full)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, []byte("stale partial data"), 0644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(server)
	snaps := collect(t, e.Transfer(context.Background(), Request{
		SourceURL:  server.URL,
		DestPath:   dest,
		ResumeFrom: 18,
	}))
	final := snaps[len(snaps)-1]
	if final.Status != StatusCompleted {
		t.Fatalf("final status = %s (%s)", final.Status, final.Error)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, full) {
		t.Error("stale partial bytes were not discarded on a 200 response")
	}
}

func TestTransferHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	e := newTestEngine(server)
	snaps := collect(t, e.Transfer(context.Background(), Request{
		SourceURL: server.URL,
		DestPath:  filepath.Join(t.TempDir(), "out.bin"),
	}))
	final := snaps[len(snaps)-1]
	if final.Status != StatusFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
	if !strings.Contains(final.Error, "404") {
		t.Errorf("error %q does not capture the status line", final.Error)
	}
	if !strings.Contains(final.Error, "protocol") {
		t.Errorf("error %q not categorized as protocol", final.Error)
	}
}

func TestTransferCancelMidStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.Write(bytes.Repeat([]byte("x"), 1024))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	dest := filepath.Join(t.TempDir(), "out.bin")
	ctx, cancel := context.WithCancel(context.Background())
	e := newTestEngine(server)
	ch := e.Transfer(ctx, Request{SourceURL: server.URL, DestPath: dest})

	var snaps []Snapshot
	for snap := range ch {
		snaps = append(snaps, snap)
		if snap.Status == StatusDownloading && snap.BytesReceived > 0 {
			cancel()
		}
	}
	defer cancel()

	terminal := 0
	for _, snap := range snaps {
		if snap.Status.Terminal() {
			terminal++
		}
	}
	if terminal != 1 {
		t.Fatalf("saw %d terminal snapshots, want 1", terminal)
	}
	final := snaps[len(snaps)-1]
	if final.Status != StatusCancelled {
		t.Fatalf("final status = %s, want cancelled", final.Status)
	}

	// The partial file must survive for a later resume.
	fi, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("partial file deleted: %v", err)
	}
	if fi.Size() == 0 {
		t.Error("partial file is empty")
	}
}

func TestTransferReadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-release // stall without closing
	}))
	defer server.Close()
	defer close(release)

	e := newTestEngine(server, WithReadTimeout(50*time.Millisecond))
	snaps := collect(t, e.Transfer(context.Background(), Request{
		SourceURL: server.URL,
		DestPath:  filepath.Join(t.TempDir(), "out.bin"),
	}))
	final := snaps[len(snaps)-1]
	if final.Status != StatusFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
	if !strings.Contains(final.Error, "timeout") {
		t.Errorf("error %q not categorized as a timeout", final.Error)
	}
}

// buildZipArchive returns zip bytes with the given name→content files.
func buildZipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestTransferWithExtraction(t *testing.T) {
	archiveData := buildZipArchive(t, map[string]string{
		"skin.yaml":   "id: pkg\nname: Pkg\nversion: 1.0.0\n",
		"colors.yaml": "primary: blue\n",
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveData)
	}))
	defer server.Close()

	tmp := t.TempDir()
	dest := filepath.Join(tmp, "pkg.zip")
	extractDir := filepath.Join(tmp, "pkg")

	e := newTestEngine(server)
	snaps := collect(t, e.Transfer(context.Background(), Request{
		SourceURL: server.URL,
		DestPath:  dest,
		ExtractTo: extractDir,
	}))
	checkOrdering(t, snaps)

	sawExtracting := false
	for _, snap := range snaps {
		if snap.Status == StatusExtracting {
			sawExtracting = true
		}
	}
	if !sawExtracting {
		t.Error("no extracting snapshot emitted")
	}
	final := snaps[len(snaps)-1]
	if final.Status != StatusCompleted {
		t.Fatalf("final status = %s (%s)", final.Status, final.Error)
	}
	if _, err := os.Stat(filepath.Join(extractDir, "colors.yaml")); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}
}

func TestTransferExtractionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("definitely not a zip archive"))
	}))
	defer server.Close()

	tmp := t.TempDir()
	dest := filepath.Join(tmp, "pkg.zip")

	e := newTestEngine(server)
	snaps := collect(t, e.Transfer(context.Background(), Request{
		SourceURL: server.URL,
		DestPath:  dest,
		ExtractTo: filepath.Join(tmp, "pkg"),
	}))
	final := snaps[len(snaps)-1]
	if final.Status != StatusFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
	if !strings.Contains(final.Error, "archive") {
		t.Errorf("error %q not categorized as archive", final.Error)
	}
	// The broken download is retained for diagnosis.
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("source archive deleted on extraction failure: %v", err)
	}
}

func TestProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", "12345")
	}))
	defer server.Close()

	e := newTestEngine(server)
	size, resumable, err := e.Probe(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if size != 12345 {
		t.Errorf("size = %d, want 12345", size)
	}
	if !resumable {
		t.Error("resumable = false, want true")
	}
}
