package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"
)

var (
	// ErrNotFound indicates the directory has no skin.yaml.
	ErrNotFound = errors.New("manifest not found")

	// ErrInvalid indicates skin.yaml exists but cannot be used: the YAML
	// does not decode, or a required field (id, name) is missing.
	ErrInvalid = errors.New("invalid manifest")
)

// knownKeys are manifest keys mapped onto typed Manifest fields.
// Everything else lands in Extra.
var knownKeys = map[string]bool{
	"id": true, "name": true, "version": true, "description": true,
	"author": true, "created_at": true, "source_url": true,
	"size_bytes": true, "tags": true, "resources": true,
}

// Load reads and parses the manifest file inside dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes manifest bytes leniently: optional fields with the wrong
// YAML type fall back to zero values instead of failing the parse, so
// partial or foreign manifests still install. Only undecodable YAML or a
// missing id/name make the manifest invalid.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}

	m := &Manifest{
		ID:          asString(raw["id"]),
		Name:        asString(raw["name"]),
		Version:     asString(raw["version"]),
		Description: asString(raw["description"]),
		Author:      asString(raw["author"]),
		SourceURL:   asString(raw["source_url"]),
		SizeBytes:   asInt64(raw["size_bytes"]),
		CreatedAt:   asTime(raw["created_at"]),
		Tags:        asStringSlice(raw["tags"]),
		Resources:   asStringSlice(raw["resources"]),
	}
	if m.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalid)
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}

	for k, v := range raw {
		if !knownKeys[k] {
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}

	return m, nil
}

// Write serializes the manifest (including Extra keys) back to
// dir/skin.yaml. Used by tests and by adoption when a manifest needs
// backfilled fields persisted.
func Write(dir string, m *Manifest) error {
	doc := map[string]any{
		"id":      m.ID,
		"name":    m.Name,
		"version": m.Version,
	}
	if m.Description != "" {
		doc["description"] = m.Description
	}
	if m.Author != "" {
		doc["author"] = m.Author
	}
	if !m.CreatedAt.IsZero() {
		doc["created_at"] = m.CreatedAt.Format(time.RFC3339)
	}
	if m.SourceURL != "" {
		doc["source_url"] = m.SourceURL
	}
	if m.SizeBytes > 0 {
		doc["size_bytes"] = m.SizeBytes
	}
	if len(m.Tags) > 0 {
		doc["tags"] = m.Tags
	}
	if len(m.Resources) > 0 {
		doc["resources"] = m.Resources
	}
	for k, v := range m.Extra {
		doc[k] = v
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
