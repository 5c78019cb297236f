package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	Addr    string   `mapstructure:"addr"`
	Workers int      `mapstructure:"workers"`
	Tags    []string `mapstructure:"tags"`
	Nested  struct {
		Key string `mapstructure:"key"`
	} `mapstructure:"nested"`

	completed bool
}

func (o *testOptions) Flags() NamedFlagSets {
	var fss NamedFlagSets
	fs := fss.FlagSet("test")
	fs.StringVar(&o.Addr, "addr", o.Addr, "listen address")
	fs.IntVar(&o.Workers, "workers", o.Workers, "worker count")
	fs.StringSliceVar(&o.Tags, "tags", o.Tags, "tags")
	fss.FlagSet("nested").StringVar(&o.Nested.Key, "nested.key", o.Nested.Key, "nested key")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error { return nil }

func newTestApp(t *testing.T, opts *testOptions, run RunFunc) *App {
	t.Helper()
	return NewApp(
		WithName("budgetqa-test"),
		WithOptions(opts),
		WithRunFunc(run),
		WithNoVersion(),
		WithEnvFiles(filepath.Join(t.TempDir(), "missing.env")),
	)
}

func TestNamedFlagSets_Order(t *testing.T) {
	var fss NamedFlagSets
	fss.FlagSet("b").Bool("x", false, "")
	fss.FlagSet("a").Bool("y", false, "")
	fss.FlagSet("b").Bool("z", false, "")

	assert.Equal(t, []string{"b", "a"}, fss.Order)
	assert.NotNil(t, fss.FlagSets["b"].Lookup("z"))
}

func TestApp_ConfigFileEnvAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("addr: \":9000\"\nworkers: 2\nnested:\n  key: ${BUDGETQA_TEST_SECRET}\n"), 0o600))

	t.Setenv("BUDGETQA_TEST_SECRET", "s3cret")
	t.Setenv("BUDGETQA_TEST_WORKERS", "7")

	opts := &testOptions{Addr: ":8000", Workers: 1}
	ran := false
	a := newTestApp(t, opts, func() error {
		ran = true
		return nil
	})
	a.Command().SetArgs([]string{"--config", cfg, "--tags", "x,y"})
	require.NoError(t, a.Command().Execute())

	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, ":9000", opts.Addr)
	assert.Equal(t, 7, opts.Workers)
	assert.Equal(t, "s3cret", opts.Nested.Key)
	assert.Equal(t, []string{"x", "y"}, opts.Tags)
}

func TestApp_ChangedFlagWins(t *testing.T) {
	t.Setenv("BUDGETQA_TEST_ADDR", ":7000")

	opts := &testOptions{Addr: ":8000"}
	a := newTestApp(t, opts, func() error { return nil })
	a.Command().SetArgs([]string{"--addr", ":6000"})
	require.NoError(t, a.Command().Execute())

	assert.Equal(t, ":6000", opts.Addr)
}

func TestApp_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BUDGETQA_NESTED_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("BUDGETQA_NESTED_KEY") })

	opts := &testOptions{}
	sub := NewApp(WithName("serve"), WithOptions(opts), WithRunFunc(func() error { return nil }))
	root := NewApp(
		WithName("budgetqa"),
		WithNoVersion(),
		WithEnvFiles(envFile),
		WithCommands(sub),
	)
	root.Command().SetArgs([]string{"serve"})
	require.NoError(t, root.Command().Execute())

	assert.Equal(t, "from-dotenv", opts.Nested.Key)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("EXPAND_HOST", "db.local")

	a := NewApp(WithName("expand"), WithNoVersion())
	a.v.Set("dsn", "postgres://${EXPAND_HOST}:5432")
	a.v.Set("plain", "$EXPAND_HOST")
	a.v.Set("unset", "${EXPAND_NOT_SET_ANYWHERE}")
	a.v.Set("number", 3)
	expandEnvVars(a.v)

	assert.Equal(t, "postgres://db.local:5432", a.v.GetString("dsn"))
	assert.Equal(t, "db.local", a.v.GetString("plain"))
	assert.Equal(t, "${EXPAND_NOT_SET_ANYWHERE}", a.v.GetString("unset"))
	assert.Equal(t, 3, a.v.GetInt("number"))
}

func TestFlagValues(t *testing.T) {
	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	fs.StringSlice("s", []string{"a", "b"}, "")
	fs.String("p", "v", "")
	assert.Equal(t, []string{"a", "b"}, flagValues(fs.Lookup("s")))
	assert.Equal(t, []string{"v"}, flagValues(fs.Lookup("p")))
}

func TestGetVersion(t *testing.T) {
	assert.NotEmpty(t, GetVersion())
}
