package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	for name, o := range map[string]interface{ Validate() []error }{
		"chunking":     NewChunkingOptions(),
		"extraction":   NewExtractionOptions(),
		"tagger":       &TaggerOptions{},
		"embedding":    NewEmbeddingOptions(),
		"retrieval":    NewRetrievalOptions(),
		"generation":   NewGenerationOptions(),
		"vector-store": NewVectorStoreOptions(),
		"ingestion":    NewIngestionOptions(),
	} {
		assert.Empty(t, o.Validate(), name)
	}
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, 500, NewChunkingOptions().ChunkSize)
	assert.Equal(t, 50, NewChunkingOptions().ChunkOverlap)
	assert.Equal(t, 5, NewRetrievalOptions().TopK)
	assert.InDelta(t, 0.3, NewRetrievalOptions().Threshold, 1e-9)
	assert.Equal(t, 3, NewGenerationOptions().MaxContextChunks)
	assert.Equal(t, 2*time.Second, NewGenerationOptions().RetryBackoff)
	assert.Equal(t, 384, NewEmbeddingOptions().Dimension)
	assert.Equal(t, 100, NewEmbeddingOptions().BatchSize)
}

func TestFlags(t *testing.T) {
	chunking := NewChunkingOptions()
	retrieval := NewRetrievalOptions()
	ingestion := NewIngestionOptions()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	chunking.AddFlags(fs)
	retrieval.AddFlags(fs)
	ingestion.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--chunking.chunk-size=800",
		"--retrieval.threshold=0.5",
		"--input-dir=/srv/pdfs",
		"--output-format=jsonl",
		"--force",
	}))
	assert.Equal(t, 800, chunking.Config().ChunkSize)
	assert.InDelta(t, 0.5, retrieval.Threshold, 1e-9)

	cfg := ingestion.IngesterConfig()
	assert.Equal(t, "/srv/pdfs", cfg.InputDir)
	assert.Equal(t, "jsonl", cfg.OutputFormat)
	assert.True(t, cfg.Force)
	assert.False(t, cfg.SkipEmbed)
}

func TestValidationErrors(t *testing.T) {
	chunking := &ChunkingOptions{ChunkSize: 100, ChunkOverlap: 100}
	assert.Len(t, chunking.Validate(), 1)

	retrieval := &RetrievalOptions{TopK: 0, Threshold: 1.5}
	assert.Len(t, retrieval.Validate(), 2)

	ingestion := NewIngestionOptions()
	ingestion.OutputFormat = "csv"
	assert.Len(t, ingestion.Validate(), 1)

	vs := &VectorStoreOptions{Backend: " Milvus "}
	require.NoError(t, vs.Complete())
	assert.Empty(t, vs.Validate())
	vs.Backend = "qdrant"
	assert.Len(t, vs.Validate(), 1)
}

func TestExtractionConfigNormalizesExtensions(t *testing.T) {
	o := &ExtractionOptions{AllowedExtensions: []string{"PDF", " .Pdf ", ""}, MaxSizeMB: 10, Fallback: true}
	cfg := o.Config()
	assert.Equal(t, []string{".pdf", ".pdf"}, cfg.AllowedExtensions)
	assert.Equal(t, 10.0, cfg.MaxSizeMB)

	assert.Len(t, (&ExtractionOptions{AllowedExtensions: []string{" "}}).Validate(), 2)
}

func TestTaggerDictionaries(t *testing.T) {
	d, err := (&TaggerOptions{}).Dictionaries()
	require.NoError(t, err)
	assert.NotEmpty(t, d.Topics)

	_, err = (&TaggerOptions{DictionaryFile: "/nonexistent/dict.yaml"}).Dictionaries()
	assert.Error(t, err)
}
