// Package testlibrary exports first-party tests, merges them with imported
// test libraries (first-party wins on conflict), and writes the merged
// library file, per SPEC_FULL.md §4.10 / spec.md §4.10.
//
// Ported from original_source/tee/parser/output/test_library_exporter.py's
// export shape (ots_version/test_library_version/description header,
// generic_tests/singular_tests present only when non-empty, JSON or YAML
// on request).
package testlibrary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/francescomucio/tee/model"
)

const (
	OTSVersion         = "0.2.0"
	TestLibraryVersion = "1.0"
)

// Library is the test-library wire document (§6.2).
type Library struct {
	OTSVersion         string                         `json:"ots_version" yaml:"ots_version"`
	TestLibraryVersion string                         `json:"test_library_version" yaml:"test_library_version"`
	Description        string                         `json:"description,omitempty" yaml:"description,omitempty"`
	GenericTests       map[string]model.GenericTest   `json:"generic_tests,omitempty" yaml:"generic_tests,omitempty"`
	SingularTests      map[string]model.SingularTest  `json:"singular_tests,omitempty" yaml:"singular_tests,omitempty"`
}

// IsEmpty reports whether the library has no tests at all.
func (l Library) IsEmpty() bool {
	return len(l.GenericTests) == 0 && len(l.SingularTests) == 0
}

// Build assembles a first-party Library from discovered generic and
// singular test definitions.
func Build(projectName string, generic map[string]model.GenericTest, singular map[string]model.SingularTest) Library {
	return Library{
		OTSVersion:         OTSVersion,
		TestLibraryVersion: TestLibraryVersion,
		Description:        "Test library for " + projectName + " project",
		GenericTests:       generic,
		SingularTests:      singular,
	}
}

// Conflict reports a single first-party/imported key collision.
type Conflict struct {
	Section string // "generic_tests" or "singular_tests"
	Name    string
}

// Merge combines firstParty with every imported library, first-party
// taking precedence on key collision within generic_tests or
// singular_tests. It returns the merged library and one Conflict per
// dropped imported definition, for the caller to log as a warning.
func Merge(firstParty Library, imported ...Library) (Library, []Conflict) {
	merged := Library{
		OTSVersion:         OTSVersion,
		TestLibraryVersion: TestLibraryVersion,
		Description:        firstParty.Description,
		GenericTests:       map[string]model.GenericTest{},
		SingularTests:      map[string]model.SingularTest{},
	}
	for k, v := range firstParty.GenericTests {
		merged.GenericTests[k] = v
	}
	for k, v := range firstParty.SingularTests {
		merged.SingularTests[k] = v
	}

	var conflicts []Conflict
	for _, lib := range imported {
		for k, v := range lib.GenericTests {
			if _, exists := merged.GenericTests[k]; exists {
				conflicts = append(conflicts, Conflict{Section: "generic_tests", Name: k})
				continue
			}
			merged.GenericTests[k] = v
		}
		for k, v := range lib.SingularTests {
			if _, exists := merged.SingularTests[k]; exists {
				conflicts = append(conflicts, Conflict{Section: "singular_tests", Name: k})
				continue
			}
			merged.SingularTests[k] = v
		}
	}

	if merged.IsEmpty() {
		merged.GenericTests = nil
		merged.SingularTests = nil
	}
	return merged, conflicts
}

// Format selects the on-disk encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Write writes lib to "<projectName>_test_library.ots.<ext>" under outDir
// and returns the written path, or "" with no error when lib is empty —
// spec.md's "empty merges emit no file and yield None" rule.
func Write(lib Library, outDir, projectName string, format Format) (string, error) {
	if lib.IsEmpty() {
		return "", nil
	}

	ext := ".ots.json"
	var encoded []byte
	var err error
	if format == FormatYAML {
		ext = ".ots.yaml"
		encoded, err = yaml.Marshal(lib)
	} else {
		encoded, err = json.MarshalIndent(lib, "", "  ")
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, projectName+"_test_library"+ext)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a test library file (JSON or YAML, selected by extension).
func Load(path string) (Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Library{}, err
	}

	var lib Library
	if strings.HasSuffix(strings.ToLower(path), ".yaml") || strings.HasSuffix(strings.ToLower(path), ".yml") {
		err = yaml.Unmarshal(raw, &lib)
	} else {
		err = json.Unmarshal(raw, &lib)
	}
	return lib, err
}
