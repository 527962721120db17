package cli

import (
	"fmt"

	"github.com/Dymaic/KSkinManager/internal/config"
	"github.com/Dymaic/KSkinManager/internal/logging"
	"github.com/Dymaic/KSkinManager/internal/registry"
	"github.com/Dymaic/KSkinManager/internal/supervisor"
	"github.com/Dymaic/KSkinManager/internal/transfer"
)

// newRegistry builds the registry over the configured install root and
// populates its index from disk.
func newRegistry() (*registry.Registry, error) {
	reg := registry.New(config.InstallRoot(), registry.WithLogger(logging.New(verboseFlag)))
	if _, err := reg.Scan(); err != nil {
		return nil, fmt.Errorf("scanning install root: %w", err)
	}
	return reg, nil
}

// newSupervisor wires the transfer engine and registry into a supervisor
// using the configured limits and timeouts.
func newSupervisor(reg *registry.Registry) *supervisor.Supervisor {
	log := logging.New(verboseFlag)
	engine := transfer.New(
		transfer.WithConnectTimeout(config.ConnectTimeout()),
		transfer.WithReadTimeout(config.ReadTimeout()),
		transfer.WithLogger(log),
	)
	return supervisor.New(supervisor.Config{
		Engine:        engine,
		Registry:      reg,
		DownloadDir:   config.DownloadDir(),
		InstallRoot:   config.InstallRoot(),
		MaxConcurrent: config.MaxConcurrent(),
		Logger:        log,
	})
}
