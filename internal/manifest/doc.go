// Package manifest models the skin.yaml file found at the root of every
// skin package directory.
//
// Parsing is deliberately lenient: optional fields that are missing or
// carry the wrong YAML type fall back to zero values so that partial or
// foreign manifests still install. Schema validation (Validate) is a
// separate, advisory pass used by `kskin validate` and registry checks.
package manifest
