package json

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct {
	Document   string         `json:"document"`
	Page       int            `json:"page"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := source{
		Document:   "budget_speech.pdf",
		Page:       12,
		Similarity: 0.812,
		Metadata:   map[string]any{"user_types": []any{"salaried"}},
	}

	data, err := Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"document":"budget_speech.pdf"`)

	var out source
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]int{"total_chunks": 3}, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"total_chunks\": 3\n}", string(data))
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(source{Document: "a.pdf", Page: 1}))
	require.NoError(t, enc.Encode(source{Document: "b.pdf", Page: 2}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	dec := NewDecoder(strings.NewReader(buf.String()))
	var first, second source
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "b.pdf", second.Document)
}

func TestIsUsingSonic(t *testing.T) {
	want := runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	assert.Equal(t, want, IsUsingSonic())
}

func TestPickFallsBackOnOtherArch(t *testing.T) {
	assert.IsType(t, stdCodec{}, pick("riscv64"))
	assert.IsType(t, sonicCodec{}, pick("arm64"))

	var buf bytes.Buffer
	enc := stdCodec{}.encoder(&buf)
	require.NoError(t, enc.Encode(source{Document: "c.pdf", Page: 3}))
	assert.Contains(t, buf.String(), `"page":3`)
}
