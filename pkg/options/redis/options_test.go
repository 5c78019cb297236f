package redis

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/budgetqa/pkg/utils/json"
)

func TestOptionsJSON_PasswordRedacted(t *testing.T) {
	opts := NewOptions()
	opts.Password = "supersecret"

	data, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")
	assert.Contains(t, string(data), redactedPassword)
	assert.Contains(t, string(data), `"host":"127.0.0.1"`)
	assert.NotContains(t, opts.String(), "supersecret")
}

func TestOptionsJSON_EmptyPassword(t *testing.T) {
	data, err := json.Marshal(NewOptions())
	require.NoError(t, err)
	assert.NotContains(t, string(data), redactedPassword)
}

func TestOptions_CompleteFromEnv(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "from-env")
	opts := NewOptions()
	require.NoError(t, opts.Complete())
	assert.Equal(t, "from-env", opts.Password)
}

func TestOptions_ValidateAndFlags(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs, "cache")
	require.NoError(t, fs.Parse([]string{"--cache.redis.port=0", "--cache.redis.host=redis"}))

	assert.Equal(t, "redis", opts.Host)
	assert.Len(t, opts.Validate(), 1)
}
