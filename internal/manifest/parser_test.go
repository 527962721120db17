package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseFullManifest(t *testing.T) {
	data := []byte(`id: ocean-dark
name: Ocean Dark
version: 1.2.3
description: A dark blue theme
author: someone
created_at: "2024-06-01T10:00:00Z"
source_url: https://example.com/ocean-dark.zip
size_bytes: 20480
tags:
  - dark
  - blue
resources:
  - colors.yaml
  - fonts/mono.ttf
`)

	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.ID != "ocean-dark" || m.Name != "Ocean Dark" || m.Version != "1.2.3" {
		t.Errorf("unexpected identity fields: %+v", m)
	}
	if m.Author != "someone" || m.SizeBytes != 20480 {
		t.Errorf("unexpected optional fields: %+v", m)
	}
	if want := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC); !m.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", m.CreatedAt, want)
	}
	if len(m.Tags) != 2 || !m.HasTag("dark") || !m.HasTag("blue") {
		t.Errorf("Tags = %v", m.Tags)
	}
	if len(m.Resources) != 2 {
		t.Errorf("Resources = %v", m.Resources)
	}
	if m.Extra != nil {
		t.Errorf("Extra should be nil for a fully known manifest, got %v", m.Extra)
	}
}

func TestParseLenientFallbacks(t *testing.T) {
	// Wrong-typed optional fields must fall back to zero values, not
	// fail the parse.
	data := []byte(`id: pkg
name: Pkg
version: 1.0.0
size_bytes: not-a-number
tags: single-string-not-a-list
created_at: garbage
`)

	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed on loose fields: %v", err)
	}
	if m.SizeBytes != 0 {
		t.Errorf("SizeBytes = %d, want 0", m.SizeBytes)
	}
	if m.Tags != nil {
		t.Errorf("Tags = %v, want nil", m.Tags)
	}
	if !m.CreatedAt.IsZero() {
		t.Errorf("CreatedAt = %v, want zero", m.CreatedAt)
	}
}

func TestParseVersionDefault(t *testing.T) {
	m, err := Parse([]byte("id: pkg\nname: Pkg\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Version != "0.0.0" {
		t.Errorf("Version = %q, want 0.0.0", m.Version)
	}
}

func TestParseRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing id", "name: Pkg\nversion: 1.0.0\n"},
		{"missing name", "id: pkg\nversion: 1.0.0\n"},
		{"empty document", ""},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); !errors.Is(err, ErrInvalid) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalid", tt.data, err)
			}
		})
	}
}

func TestParseExtraKeys(t *testing.T) {
	data := []byte(`id: pkg
name: Pkg
version: 1.0.0
accent_color: "#ff8800"
custom:
  nested: true
`)

	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Extra["accent_color"] != "#ff8800" {
		t.Errorf("Extra[accent_color] = %v", m.Extra["accent_color"])
	}
	if _, ok := m.Extra["custom"]; !ok {
		t.Errorf("nested custom key not preserved: %v", m.Extra)
	}
	if _, ok := m.Extra["id"]; ok {
		t.Error("known key leaked into Extra")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("id: pkg\nname: Pkg\nversion: 2.0.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.ID != "pkg" || m.Version != "2.0.0" {
		t.Errorf("unexpected manifest: %+v", m)
	}
}

func TestLoadNotFound(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load on empty dir error = %v, want ErrNotFound", err)
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &Manifest{
		ID:        "pkg1",
		Name:      "Pkg One",
		Version:   "2.0.0",
		Author:    "author",
		Tags:      []string{"dark"},
		Resources: []string{"colors.yaml"},
		Extra:     map[string]any{"accent_color": "#ff8800"},
	}
	if err := Write(dir, in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if out.ID != in.ID || out.Name != in.Name || out.Version != in.Version {
		t.Errorf("identity fields changed: %+v", out)
	}
	if out.Extra["accent_color"] != "#ff8800" {
		t.Errorf("Extra lost in round trip: %v", out.Extra)
	}
}
