package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/Dymaic/KSkinManager/internal/supervisor"
	"github.com/Dymaic/KSkinManager/internal/transfer"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var installNoExtract bool

var installCmd = &cobra.Command{
	Use:   "install <url> [url...]",
	Short: "Download and install skin packages",
	Long: `Download one or more skin package archives, extract them, and register
them under the install root. Identical URLs are de-duplicated; downloads
interrupted by Ctrl-C keep their partial file and resume on the next run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installNoExtract, "no-extract", false, "Keep the raw archive, skip extraction and registration")
	rootCmd.AddCommand(installCmd)
}

var printer = message.NewPrinter(language.English)

func runInstall(cmd *cobra.Command, args []string) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	sup := newSupervisor(reg)
	defer sup.Close()

	// Ctrl-C cancels every in-flight transfer; partial files stay on
	// disk so the next run resumes.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.OutOrStdout(), "\nCancelling...")
			sup.CancelAll()
		case <-done:
		}
	}()

	opts := supervisor.StartOptions{Extract: !installNoExtract}

	if len(args) == 1 {
		return installOne(cmd, sup, args[0], opts)
	}
	return installMany(cmd, sup, args, opts)
}

// installOne streams live progress for a single download.
func installOne(cmd *cobra.Command, sup *supervisor.Supervisor, url string, opts supervisor.StartOptions) error {
	out := cmd.OutOrStdout()

	h, err := sup.Start(url, opts)
	if err != nil {
		return err
	}

	var last transfer.Snapshot
	progressed := false
	for snap := range h.Snapshots() {
		last = snap
		switch snap.Status {
		case transfer.StatusDownloading:
			printProgress(out, snap)
			progressed = true
		case transfer.StatusExtracting:
			fmt.Fprintf(out, "\nExtracting...\n")
			progressed = false
		}
	}
	if progressed {
		fmt.Fprintln(out)
	}

	return reportResult(out, h, url, last)
}

// installMany runs several downloads concurrently and reports each
// terminal result as it lands.
func installMany(cmd *cobra.Command, sup *supervisor.Supervisor, urls []string, opts supervisor.StartOptions) error {
	out := cmd.OutOrStdout()

	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0

	for _, url := range urls {
		h, err := sup.Start(url, opts)
		if err != nil {
			if errors.Is(err, supervisor.ErrLimitReached) {
				fmt.Fprintf(out, "  ✗ %s: rejected (%v)\n", url, err)
			} else {
				fmt.Fprintf(out, "  ✗ %s: %v\n", url, err)
			}
			mu.Lock()
			failures++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(url string, h *supervisor.Handle) {
			defer wg.Done()
			last := h.Wait()
			mu.Lock()
			defer mu.Unlock()
			if err := reportResult(out, h, url, last); err != nil {
				failures++
			}
		}(url, h)
	}
	wg.Wait()

	if failures > 0 {
		return fmt.Errorf("%d of %d installs failed", failures, len(urls))
	}
	return nil
}

// printProgress renders one downloading snapshot on the current line.
func printProgress(out io.Writer, snap transfer.Snapshot) {
	speed := printer.Sprintf("%d B/s", int64(snap.BytesPerSec))
	if snap.BytesTotal > 0 {
		line := printer.Sprintf("\rDownloading... %3.0f%% (%d / %d bytes, %s)",
			snap.Fraction()*100, snap.BytesReceived, snap.BytesTotal, speed)
		if eta, ok := snap.ETA(); ok {
			line += printer.Sprintf(", ETA %s", eta.Round(time.Second))
		}
		fmt.Fprint(out, line)
		return
	}
	printer.Fprintf(out, "\rDownloading... %d bytes (%s)", snap.BytesReceived, speed)
}

// reportResult prints the terminal outcome for one URL and returns an
// error when the transfer did not complete.
func reportResult(out io.Writer, h *supervisor.Handle, url string, last transfer.Snapshot) error {
	switch last.Status {
	case transfer.StatusCompleted:
		if pkg, ok := h.Installed(); ok {
			fmt.Fprintf(out, "  ✓ %s %s (%s) installed to %s\n",
				pkg.Manifest.Name, pkg.Manifest.Version, pkg.Manifest.ID, pkg.Path)
		} else {
			printer.Fprintf(out, "  ✓ %s downloaded (%d bytes)\n", url, last.BytesReceived)
		}
		return nil
	case transfer.StatusCancelled:
		printer.Fprintf(out, "  ✗ %s cancelled after %d bytes (partial file retained for resume)\n",
			url, last.BytesReceived)
		return fmt.Errorf("cancelled: %s", url)
	default:
		fmt.Fprintf(out, "  ✗ %s failed: %s\n", url, last.Error)
		return fmt.Errorf("failed: %s", url)
	}
}
