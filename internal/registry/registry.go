package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/Dymaic/KSkinManager/internal/manifest"
)

// ErrNotFound indicates an operation on an unknown package id.
var ErrNotFound = errors.New("package not found")

// InstalledPackage is one adopted skin package directory.
type InstalledPackage struct {
	Manifest    *manifest.Manifest
	Path        string
	InstalledAt time.Time
}

// ScanIssue records a directory skipped during a scan and why. Issues
// are reported, never raised; a foreign or half-written directory must
// not break a scan.
type ScanIssue struct {
	Dir    string
	Reason error
}

// Registry indexes the skin packages installed under a root directory.
//
// The filesystem is the source of truth; the in-memory index is a
// derived cache that Scan rebuilds at any time. All methods are safe
// for concurrent use.
type Registry struct {
	root string
	log  *zap.Logger

	mu   sync.RWMutex
	pkgs map[string]*InstalledPackage
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// New creates a Registry over root. Call Scan to populate the index.
func New(root string, opts ...Option) *Registry {
	r := &Registry{
		root: root,
		log:  zap.NewNop(),
		pkgs: make(map[string]*InstalledPackage),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the install root directory.
func (r *Registry) Root() string { return r.root }

// Scan rebuilds the index from disk. Immediate subdirectories of the
// root with a parseable manifest become installed packages; the rest are
// skipped and reported as issues. A missing root is an empty registry,
// not an error.
func (r *Registry) Scan() ([]ScanIssue, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.pkgs = make(map[string]*InstalledPackage)
			r.mu.Unlock()
			return nil, nil
		}
		return nil, fmt.Errorf("reading install root %s: %w", r.root, err)
	}

	pkgs := make(map[string]*InstalledPackage)
	var issues []ScanIssue
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, entry.Name())
		pkg, err := loadPackage(dir)
		if err != nil {
			r.log.Debug("skipping directory during scan",
				zap.String("dir", dir), zap.Error(err))
			issues = append(issues, ScanIssue{Dir: dir, Reason: err})
			continue
		}
		pkgs[pkg.Manifest.ID] = pkg
	}

	r.mu.Lock()
	r.pkgs = pkgs
	r.mu.Unlock()

	r.log.Info("scan complete",
		zap.String("root", r.root),
		zap.Int("packages", len(pkgs)),
		zap.Int("skipped", len(issues)))
	return issues, nil
}

// Adopt loads the manifest inside dir and records it as an installed
// package. Used right after extraction; fails when no valid manifest is
// found so the caller can treat the whole transfer as failed.
func (r *Registry) Adopt(dir string) (*InstalledPackage, error) {
	pkg, err := loadPackage(dir)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.pkgs[pkg.Manifest.ID] = pkg
	r.mu.Unlock()
	r.log.Info("package adopted",
		zap.String("id", pkg.Manifest.ID),
		zap.String("version", pkg.Manifest.Version),
		zap.String("dir", dir))
	return pkg, nil
}

// Remove deletes the package's directory recursively and drops it from
// the index. When deletion fails partway the directory may be left
// inconsistent; callers should Scan afterward to reconcile.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	pkg, ok := r.pkgs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.pkgs, id)
	r.mu.Unlock()

	if err := os.RemoveAll(pkg.Path); err != nil {
		return fmt.Errorf("removing %s: %w", pkg.Path, err)
	}
	r.log.Info("package removed", zap.String("id", id), zap.String("dir", pkg.Path))
	return nil
}

// Validate checks a package beyond the index: the directory exists, the
// manifest still parses and passes the schema, and every listed resource
// file is present. Advisory, never invoked during normal lookup.
func (r *Registry) Validate(id string) error {
	r.mu.RLock()
	pkg, ok := r.pkgs[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if _, err := os.Stat(pkg.Path); err != nil {
		return fmt.Errorf("package directory missing: %w", err)
	}
	m, err := manifest.Load(pkg.Path)
	if err != nil {
		return fmt.Errorf("manifest no longer loads: %w", err)
	}

	manifestPath := filepath.Join(pkg.Path, manifest.FileName)
	result, err := manifest.ValidateFile(manifestPath)
	if err != nil {
		return fmt.Errorf("running schema validation: %w", err)
	}
	if !result.Valid {
		issue := result.Issues[0]
		return fmt.Errorf("manifest fails schema at %s: %s", issue.Path, issue.Message)
	}

	for _, res := range m.Resources {
		resPath := filepath.Join(pkg.Path, filepath.FromSlash(res))
		if _, err := os.Stat(resPath); err != nil {
			return fmt.Errorf("resource %s missing: %w", res, err)
		}
	}
	return nil
}

// Get looks up an installed package by id.
func (r *Registry) Get(id string) (*InstalledPackage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pkg, ok := r.pkgs[id]
	return pkg, ok
}

// GetByName looks up an installed package by manifest name. When several
// packages share a name, the highest semantic version wins; packages
// with unparseable versions lose to any parseable one.
func (r *Registry) GetByName(name string) (*InstalledPackage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *InstalledPackage
	var bestVer *semver.Version
	for _, pkg := range r.pkgs {
		if pkg.Manifest.Name != name {
			continue
		}
		ver, err := semver.NewVersion(pkg.Manifest.Version)
		switch {
		case best == nil:
			best, bestVer = pkg, nil
			if err == nil {
				bestVer = ver
			}
		case err == nil && (bestVer == nil || ver.GreaterThan(bestVer)):
			best, bestVer = pkg, ver
		}
	}
	return best, best != nil
}

// List returns all installed packages ordered by id.
func (r *Registry) List() []*InstalledPackage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*InstalledPackage, 0, len(r.pkgs))
	for _, pkg := range r.pkgs {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Manifest.ID < out[j].Manifest.ID
	})
	return out
}

// TotalSize walks every installed package directory and sums file sizes.
func (r *Registry) TotalSize() (int64, error) {
	var total int64
	for _, pkg := range r.List() {
		err := filepath.WalkDir(pkg.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("sizing %s: %w", pkg.Path, err)
		}
	}
	return total, nil
}

// loadPackage builds an InstalledPackage record from a directory.
func loadPackage(dir string) (*InstalledPackage, error) {
	m, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}
	installedAt := time.Now()
	if fi, err := os.Stat(dir); err == nil {
		installedAt = fi.ModTime()
	}
	return &InstalledPackage{
		Manifest:    m,
		Path:        dir,
		InstalledAt: installedAt,
	}, nil
}
