package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by a binary's top-level options. The
// mapstructure tags on the implementing struct decide how a config file and
// CROSSWAY_* environment variables land in it.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in defaults that depend on other fields or the host.
	Complete() error

	// Validate checks the options after Complete.
	Validate() error
}
