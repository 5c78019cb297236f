// Package app 把 cobra 命令、pflag 选项与 viper 配置加载组装成可运行的应用。
//
//	app.NewApp(
//	    app.WithName("budgetqa"),
//	    app.WithCommands(serve, ingest),
//	).Run()
//
// 带 options 的命令在运行前依次执行：加载 .env、读取配置文件与环境变量、
// 回填命令行参数、Complete、Validate，最后调用 RunFunc。
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultVersion = "1.0.0"

// RunFunc 在配置加载与校验完成后执行。
type RunFunc func() error

type Option func(*App)

// App 一个 cobra 命令及其配置来源。子命令共享根命令的环境变量前缀、.env 文件和配置文件名。
type App struct {
	name        string
	shortDesc   string
	description string

	envPrefix  string
	envFiles   []string
	configName string
	noConfig   bool
	noVersion  bool

	options  CliOptions
	runFunc  RunFunc
	args     cobra.PositionalArgs
	commands []*App

	cmd *cobra.Command
	v   *viper.Viper
}

func WithName(name string) Option { return func(a *App) { a.name = name } }
func WithShortDescription(s string) Option { return func(a *App) { a.shortDesc = s } }
func WithDescription(s string) Option { return func(a *App) { a.description = s } }
func WithOptions(opts CliOptions) Option { return func(a *App) { a.options = opts } }
func WithRunFunc(run RunFunc) Option { return func(a *App) { a.runFunc = run } }
func WithArgs(args cobra.PositionalArgs) Option { return func(a *App) { a.args = args } }

// WithCommands 挂载子命令。
func WithCommands(cmds ...*App) Option {
	return func(a *App) { a.commands = append(a.commands, cmds...) }
}

// WithEnvFiles 替换默认的 .env 文件列表，不存在的文件会被忽略。
func WithEnvFiles(files ...string) Option {
	return func(a *App) { a.envFiles = files }
}

// WithNoVersion 不注册 --version。
func WithNoVersion() Option { return func(a *App) { a.noVersion = true } }

// WithNoConfig 不注册 --config，也不读取配置文件。
func WithNoConfig() Option { return func(a *App) { a.noConfig = true } }

func NewApp(opts ...Option) *App {
	a := &App{
		name:     filepath.Base(os.Args[0]),
		envFiles: []string{".env"},
		v:        viper.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.envPrefix = strings.ToUpper(strings.ReplaceAll(a.name, "-", "_"))
	a.cmd = a.newCommand()
	return a
}

func (a *App) newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          a.name,
		Short:        a.shortDesc,
		Long:         a.description,
		Args:         a.args,
		SilenceUsage: true,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	if a.runFunc != nil || a.options != nil {
		cmd.RunE = a.run
	}

	pfs := cmd.PersistentFlags()
	if !a.noConfig {
		pfs.StringP("config", "c", "", "Read configuration from this file instead of searching for "+a.name+".yaml.")
	}
	if !a.noVersion {
		version.AddFlags(pfs)
	}

	if a.options != nil {
		nfs := a.options.Flags()
		for _, name := range nfs.Order {
			cmd.Flags().AddFlagSet(nfs.FlagSets[name])
		}
	}

	for _, sub := range a.commands {
		sub.envPrefix, sub.envFiles, sub.configName = a.envPrefix, a.envFiles, a.name
		cmd.AddCommand(sub.cmd)
	}
	return cmd
}

func (a *App) run(cmd *cobra.Command, _ []string) error {
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}
	if err := loadEnvFiles(a.envFiles); err != nil {
		return err
	}
	if !a.noConfig {
		if err := a.loadConfig(cmd); err != nil {
			return err
		}
	}
	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	if a.runFunc == nil {
		return cmd.Help()
	}
	return a.runFunc()
}

// Run 执行命令，出错时打印错误并以状态码 1 退出。
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) Command() *cobra.Command {
	return a.cmd
}

// GetVersion 返回构建时注入的版本，未注入时返回 1.0.0。
func GetVersion() string {
	if v := version.Get().GitVersion; v != "" && !strings.HasPrefix(v, "v0.0.0") {
		return v
	}
	return defaultVersion
}
