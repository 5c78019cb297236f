package llm

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatOptions_Defaults(t *testing.T) {
	o := NewChatOptions()
	cfg := o.ToConfig()
	assert.Equal(t, "llama-3.1-8b-instant", cfg.ChatModel)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.Equal(t, 1024, cfg.MaxTokens)
	require.NotNil(t, cfg.MaxRetries)
	assert.Equal(t, 0, cfg.RetryCount())
	assert.Empty(t, o.Validate())
}

func TestProviderOptions_CompleteReadsEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	o := NewChatOptions()
	o.Provider = " Groq "
	require.NoError(t, o.Complete())
	assert.Equal(t, "groq", o.Provider)
	assert.Equal(t, "gsk-test", o.APIKey)

	e := NewEmbeddingOptions()
	require.NoError(t, e.Complete())
	assert.Empty(t, e.APIKey)
}

func TestProviderOptions_Flags(t *testing.T) {
	chat := NewChatOptions()
	embed := NewEmbeddingOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	chat.AddFlags(fs)
	embed.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--chat.max-tokens=256", "--embedding.model=nomic-embed-text"}))
	assert.Equal(t, 256, chat.MaxTokens)
	assert.Equal(t, "nomic-embed-text", embed.Model)
	assert.Nil(t, fs.Lookup("embedding.temperature"))
	assert.Nil(t, fs.Lookup("chat.max-retries"))
	assert.NotNil(t, fs.Lookup("embedding.max-retries"))
}

func TestProviderOptions_Validate(t *testing.T) {
	o := NewChatOptions()
	o.Model = ""
	o.Temperature = 3
	assert.Len(t, o.Validate(), 2)
}
