package options

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func TestJoin(t *testing.T) {
	assert.Equal(t, "", Join())
	assert.Equal(t, "cache.", Join("cache"))
	assert.Equal(t, "cache.redis.", Join("cache", "redis"))
	assert.Equal(t, "cache.redis.", Join("cache.", "", ".redis"))
}

type stubOptions struct{ errs []error }

func (s *stubOptions) Validate() []error { return s.errs }
func (s *stubOptions) AddFlags(*pflag.FlagSet, ...string) {}

func TestValidateAll(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")

	errs := ValidateAll(&stubOptions{errs: []error{a}}, nil, &stubOptions{}, &stubOptions{errs: []error{b}})
	assert.Equal(t, []error{a, b}, errs)
	assert.Empty(t, ValidateAll())
}
