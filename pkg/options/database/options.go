// Package database provides relational database options for the document registry.
package database

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/budgetqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 支持的驱动。
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Options 关系数据库配置。
type Options struct {
	Driver                string        `json:"driver" mapstructure:"driver"`
	DSN                   string        `json:"-" mapstructure:"dsn"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	SlowThreshold         time.Duration `json:"slow-threshold" mapstructure:"slow-threshold"`
	LogLevel              int           `json:"log-level" mapstructure:"log-level"`
}

// NewOptions 返回默认配置：本地 sqlite 文件。
func NewOptions() *Options {
	return &Options{
		Driver:                DriverSQLite,
		DSN:                   "data/budgetqa.db",
		MaxIdleConnections:    10,
		MaxOpenConnections:    20,
		MaxConnectionLifeTime: 10 * time.Second,
		SlowThreshold:         200 * time.Millisecond,
		LogLevel:              2,
	}
}

// Complete 规范化驱动名，并在未指定 DSN 时读取 DATABASE_URL。
func (o *Options) Complete() error {
	o.Driver = strings.ToLower(strings.TrimSpace(o.Driver))
	if env := os.Getenv("DATABASE_URL"); env != "" && o.DSN == "" {
		o.DSN = env
	}
	return nil
}

// Validate 校验配置。
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported (sqlite, postgres, mysql)", o.Driver))
	}
	if o.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn cannot be empty"))
	}
	if o.LogLevel < 1 || o.LogLevel > 4 {
		errs = append(errs, fmt.Errorf("database.log-level must be in [1, 4]"))
	}
	return errs
}

// AddFlags 注册命令行参数。
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "database."
	fs.StringVar(&o.Driver, p+"driver", o.Driver, "Registry database driver: sqlite, postgres or mysql.")
	fs.StringVar(&o.DSN, p+"dsn", o.DSN, "Registry database DSN (sqlite file path for the sqlite driver).")
	fs.IntVar(&o.MaxIdleConnections, p+"max-idle-connections", o.MaxIdleConnections, "Maximum idle connections.")
	fs.IntVar(&o.MaxOpenConnections, p+"max-open-connections", o.MaxOpenConnections, "Maximum open connections.")
	fs.DurationVar(&o.MaxConnectionLifeTime, p+"max-connection-life-time", o.MaxConnectionLifeTime, "Maximum connection lifetime.")
	fs.DurationVar(&o.SlowThreshold, p+"slow-threshold", o.SlowThreshold, "Queries slower than this are logged as warnings.")
	fs.IntVar(&o.LogLevel, p+"log-level", o.LogLevel, "GORM log level: 1 silent, 2 error, 3 warn, 4 info.")
}
