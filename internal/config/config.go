package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Dymaic/KSkinManager/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Configuration keys.
const (
	KeyInstallRoot    = "install_root"
	KeyDownloadDir    = "download_dir"
	KeyMaxConcurrent  = "max_concurrent"
	KeyConnectTimeout = "connect_timeout"
	KeyReadTimeout    = "read_timeout"
)

// Dir returns the path to the KSkin config directory (~/.kskin/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.kskin/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()

	viper.SetDefault(KeyInstallRoot, filepath.Join(Dir(), "skins"))
	viper.SetDefault(KeyDownloadDir, filepath.Join(Dir(), "downloads"))
	viper.SetDefault(KeyMaxConcurrent, 3)
	viper.SetDefault(KeyConnectTimeout, "10s")
	viper.SetDefault(KeyReadTimeout, "30s")

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// InstallRoot returns the directory installed skin packages live under.
func InstallRoot() string {
	return viper.GetString(KeyInstallRoot)
}

// DownloadDir returns the directory archives are downloaded into.
func DownloadDir() string {
	return viper.GetString(KeyDownloadDir)
}

// MaxConcurrent returns the transfer concurrency ceiling.
func MaxConcurrent() int {
	return viper.GetInt(KeyMaxConcurrent)
}

// ConnectTimeout returns the network connect timeout.
func ConnectTimeout() time.Duration {
	return viper.GetDuration(KeyConnectTimeout)
}

// ReadTimeout returns the per-chunk network read timeout.
func ReadTimeout() time.Duration {
	return viper.GetDuration(KeyReadTimeout)
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
