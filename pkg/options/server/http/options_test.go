package http

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	o := NewOptions()
	assert.Equal(t, ":8000", o.Addr)
	assert.Empty(t, o.Validate())
}

func TestOptions_Flags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--http.addr=:9000", "--http.shutdown-timeout=3s"}))
	assert.Equal(t, ":9000", o.Addr)
	assert.Equal(t, 3*time.Second, o.ShutdownTimeout)
}

func TestOptions_Validate(t *testing.T) {
	o := NewOptions()
	o.ApplyOptions(WithAddr(""), WithShutdownTimeout(-time.Second))
	o.ReadTimeout = 0
	o.MaxHeaderBytes = -1
	assert.Len(t, o.Validate(), 4)
}
