package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// loadEnvFiles 加载 .env 文件，已存在的环境变量不会被覆盖。
func loadEnvFiles(files []string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// configPaths 未指定 --config 时依次搜索的目录。
func configPaths(name string) []string {
	paths := []string{".", "./configs"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+name))
	}
	return append(paths, filepath.Join("/etc", name))
}

// loadConfig 合并配置来源并解码到 options。
// 优先级：显式传入的命令行参数 > 环境变量 > 配置文件 > 默认值。
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.v
	if file, _ := cmd.Flags().GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		name := a.configName
		if name == "" {
			name = a.name
		}
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		for _, p := range configPaths(name) {
			v.AddConfigPath(p)
		}
	}

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("read config file: %w", err)
	}
	expandEnvVars(v)

	v.SetEnvPrefix(a.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.options == nil {
		return nil
	}

	// Unmarshal 会用配置值覆盖 flag 绑定的字段，先记下显式传入的参数，解码后再写回
	explicit := map[string][]string{}
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" {
			return
		}
		// 配置文件中没有的键也要能被 BUDGETQA_* 覆盖
		if err := v.BindEnv(f.Name); err != nil {
			errs = append(errs, err)
		}
		if f.Changed {
			explicit[f.Name] = flagValues(f)
		}
	})
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	for name, vals := range explicit {
		if err := reapply(cmd.Flags().Lookup(name), vals); err != nil {
			return fmt.Errorf("re-apply --%s: %w", name, err)
		}
	}
	return nil
}

func reapply(f *pflag.Flag, vals []string) error {
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		return sv.Replace(vals)
	}
	return f.Value.Set(vals[0])
}

func flagValues(f *pflag.Flag) []string {
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		return sv.GetSlice()
	}
	return []string{f.Value.String()}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars 展开配置中字符串值里的 ${VAR} 与 $VAR，未设置的变量保持原样。
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		out := envPattern.ReplaceAllStringFunc(s, func(m string) string {
			sub := envPattern.FindStringSubmatch(m)
			name := sub[1]
			if name == "" {
				name = sub[2]
			}
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return m
		})
		if out != s {
			v.Set(key, out)
		}
	}
}
