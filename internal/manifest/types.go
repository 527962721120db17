package manifest

import "time"

// FileName is the manifest file expected at the root of every skin
// package directory.
const FileName = "skin.yaml"

// Manifest describes one skin package. The known fields form a closed
// set; anything else found in skin.yaml is preserved in Extra so foreign
// manifests round-trip without loss.
type Manifest struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Version     string    `yaml:"version" json:"version"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string    `yaml:"author,omitempty" json:"author,omitempty"`
	CreatedAt   time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	SourceURL   string    `yaml:"source_url,omitempty" json:"source_url,omitempty"`
	SizeBytes   int64     `yaml:"size_bytes,omitempty" json:"size_bytes,omitempty"`
	Tags        []string  `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Resources lists payload files by path relative to the package
	// directory. Checked by registry validation, never during lookup.
	Resources []string `yaml:"resources,omitempty" json:"resources,omitempty"`

	// Extra holds unrecognized manifest keys.
	Extra map[string]any `yaml:"-" json:"extra,omitempty"`
}

// HasTag reports whether the manifest carries the given tag.
func (m *Manifest) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
