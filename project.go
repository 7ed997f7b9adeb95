package tee

import (
	"log/slog"

	"github.com/francescomucio/tee/variables"
)

// Format selects the on-disk encoding for every artifact the compiler
// writes (portable modules, the merged test library, the graph artifact).
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Project is the caller-supplied configuration for one compilation, the
// Go-native replacement for the project-config file loading spec.md §1
// places out of scope.
type Project struct {
	// RootPath is the project directory containing models/, functions/,
	// and tests/ sub-directories.
	RootPath string

	// Name identifies the project; used for the test library filename
	// ("<Name>_test_library.ots.<ext>") and default module descriptions.
	Name string

	// Database is the target database name embedded in every module_name
	// ("<Database>.<schema>").
	Database string

	// Connection selects the dialect via the fixed connection-to-dialect
	// map (spec.md §4.9) and the identifier convention (resolver package).
	Connection string

	// Variables supplies values for @var / {{ var }} placeholder expansion.
	Variables variables.Values

	// ModuleTags are concatenated in front of every entity's own tags
	// (spec.md §4.9's tag-merging rule).
	ModuleTags []string

	// OutputDir is where portable modules, the test library, and the
	// graph artifact are written.
	OutputDir string

	// Format selects JSON or YAML for written artifacts. Defaults to JSON.
	Format Format

	// StrictModuleLocation turns the location-validation check on imported
	// modules (spec.md §4.7) from an advisory warning into a fatal error,
	// per spec.md §9's open-question resolution.
	StrictModuleLocation bool

	// Logger receives one line per pipeline stage and one line per
	// skipped-file / non-fatal diagnostic. Defaults to slog.Default().
	Logger *slog.Logger
}

func (p Project) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p Project) format() Format {
	if p.Format == FormatYAML {
		return FormatYAML
	}
	return FormatJSON
}
