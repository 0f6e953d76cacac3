package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by the options of every command.
// Flags are grouped into named sections for the help output.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in defaults that depend on other fields.
	Complete() error

	// Validate checks the options after flags and config have been applied.
	Validate() error
}
