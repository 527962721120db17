package manifest

import "testing"

func TestValidateAcceptsWellFormedManifest(t *testing.T) {
	data := []byte(`id: ocean-dark
name: Ocean Dark
version: 1.2.3
tags:
  - dark
resources:
  - colors.yaml
`)

	result, err := Validate(data)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid, got issues: %+v", result.Issues)
	}
}

func TestValidateRejectsBadVersion(t *testing.T) {
	data := []byte("id: pkg\nname: Pkg\nversion: not-semver\n")

	result, err := Validate(data)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Fatal("expected schema violation for non-semver version")
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Path == "/version" {
			found = true
		}
	}
	if !found {
		t.Errorf("no issue at /version: %+v", result.Issues)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	result, err := Validate([]byte("name: Pkg\n"))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Fatal("expected schema violation for missing id/version")
	}
}
