// Package config manages persistent CLI configuration stored in
// ~/.kskin/config.yaml, backed by Viper with KSKIN_* environment
// variable overrides.
package config
