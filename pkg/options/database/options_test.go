package database

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Validate(t *testing.T) {
	assert.Empty(t, NewOptions().Validate())

	o := NewOptions()
	o.Driver = "oracle"
	o.DSN = ""
	o.LogLevel = 9
	assert.Len(t, o.Validate(), 3)
}

func TestOptions_CompleteAndFlags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--database.driver= Postgres ", "--database.dsn=host=db user=qa"}))
	require.NoError(t, o.Complete())

	assert.Equal(t, DriverPostgres, o.Driver)
	assert.Equal(t, "host=db user=qa", o.DSN)
}

func TestOptions_CompleteReadsEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "root:pw@tcp(db:3306)/qa")
	o := NewOptions()
	o.DSN = ""
	require.NoError(t, o.Complete())
	assert.Equal(t, "root:pw@tcp(db:3306)/qa", o.DSN)
}
