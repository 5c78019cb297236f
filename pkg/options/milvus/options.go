// Package milvusopts provides options for Milvus client configuration.
package milvusopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/budgetqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Milvus client and collection configuration.
type Options struct {
	// Address is the Milvus server address (host:port).
	Address string `json:"address" mapstructure:"address"`

	// Database is the database name to use.
	Database string `json:"database" mapstructure:"database"`

	// Username for authentication.
	Username string `json:"username" mapstructure:"username"`

	// Password for authentication.
	Password string `json:"password" mapstructure:"password"`

	// Timeout for connection and operations.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Collection is the chunk collection name.
	Collection string `json:"collection" mapstructure:"collection"`

	// HNSW index parameters.
	IndexM              int `json:"index-m" mapstructure:"index-m"`
	IndexEfConstruction int `json:"index-ef-construction" mapstructure:"index-ef-construction"`
	SearchEf            int `json:"search-ef" mapstructure:"search-ef"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Address:             "localhost:19530",
		Database:            "default",
		Timeout:             30 * time.Second,
		Collection:          "budget_chunks",
		IndexM:              16,
		IndexEfConstruction: 64,
		SearchEf:            64,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus server address (host:port).")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database name.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus username for authentication.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password for authentication.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Connection and operation timeout.")
	fs.StringVar(&o.Collection, p+"collection", o.Collection, "Collection holding the embedded chunks.")
	fs.IntVar(&o.IndexM, p+"index-m", o.IndexM, "HNSW M parameter.")
	fs.IntVar(&o.IndexEfConstruction, p+"index-ef-construction", o.IndexEfConstruction, "HNSW efConstruction parameter.")
	fs.IntVar(&o.SearchEf, p+"search-ef", o.SearchEf, "HNSW ef search parameter.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus address is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus timeout must be positive"))
	}
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("milvus collection is required"))
	}
	if o.IndexM <= 0 || o.IndexEfConstruction <= 0 || o.SearchEf <= 0 {
		errs = append(errs, fmt.Errorf("milvus HNSW parameters must be positive"))
	}
	return errs
}
