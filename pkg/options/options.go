// Package options defines the options contract shared by every configurable component.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every options struct that registers flags.
type IOptions interface {
	// Validate returns every problem found, nil when the options are usable.
	Validate() []error

	// AddFlags registers the flags under the given prefixes.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join builds a flag prefix: Join("cache", "redis") is "cache.redis.", Join() is "".
func Join(prefixes ...string) string {
	var b strings.Builder
	for _, p := range prefixes {
		p = strings.Trim(p, ".")
		if p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteByte('.')
	}
	return b.String()
}

// ValidateAll collects the errors of several options, nil entries are skipped.
func ValidateAll(opts ...IOptions) []error {
	var errs []error
	for _, o := range opts {
		if o == nil {
			continue
		}
		errs = append(errs, o.Validate()...)
	}
	return errs
}
