// Package datasets defines the dataset builder interface and the registry
// that dataset kinds register into. Each supported dataset lives in its own
// subpackage and registers itself from an init function, so a plain
// underscore import in the main package is enough to enable it.
package datasets

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/validation"
)

// Info describes a dataset kind for listings and the status page.
type Info struct {
	// Kind is the registry key used as datasets.*.kind in the config.
	Kind string

	// Title is the human readable dataset name.
	Title string

	// Source names where the data comes from (OpenNeuro accession, study).
	Source string

	// RowUnit is what one table row represents, "subject" or "session".
	RowUnit string
}

// Builder turns a downloaded dataset directory into a table and knows how to
// validate the download it expects.
type Builder interface {
	Info() Info

	// Schema returns the column layout of the built table.
	Schema() table.Schema

	// Build assembles the full table from the dataset root. Image columns
	// hold absolute file paths, payloads are embedded later per shard.
	Build(root string) (*table.Table, error)

	// Rules returns the download validation rules with the expected census.
	Rules() validation.Rules

	// TableChecks verifies the assembled table against the census before it
	// is pushed.
	TableChecks(tbl *table.Table) []validation.Check
}

var builders = make(map[string]Builder)

// Register adds a dataset builder to the registry. It panics on duplicate
// kinds, which would be a programming error.
func Register(b Builder) {
	kind := b.Info().Kind
	if _, exists := builders[kind]; exists {
		panic(fmt.Sprintf("dataset kind %q registered twice", kind))
	}
	builders[kind] = b
}

// Get returns the builder for a dataset kind.
func Get(kind string) (Builder, error) {
	if kind == "" {
		return nil, fmt.Errorf("no dataset kind configured")
	}
	b, exists := builders[kind]
	if !exists {
		return nil, fmt.Errorf("dataset kind %q not found or registered", kind)
	}
	return b, nil
}

// Kinds returns all registered dataset kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(builders))
	for kind := range builders {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}
