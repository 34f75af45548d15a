package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/spf13/viper"

	"seoaudit/internal/errutil"
)

// Database selects the check result backend for one module.
type Database string

const (
	// DatabaseWarehouse routes check results through the buffered
	// warehouse writer.
	DatabaseWarehouse Database = "warehouse"

	// DatabaseMongoDB keeps raw documents in the document store and routes
	// check results through the relational sink.
	DatabaseMongoDB Database = "mongodb"
)

func (d Database) Valid() bool {
	return d == DatabaseWarehouse || d == DatabaseMongoDB
}

type MongoDB struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbname"`
}

type Warehouse struct {
	DSN                string            `mapstructure:"dsn"`
	Dataset            string            `mapstructure:"dataset"`
	AdditionalDatasets map[string]string `mapstructure:"additional_datasets"`
}

type Relational struct {
	DSN string `mapstructure:"dsn"`
}

type PubSub struct {
	URL string `mapstructure:"url"`
}

type Databases struct {
	MongoDB    *MongoDB    `mapstructure:"mongodb"`
	Warehouse  *Warehouse  `mapstructure:"warehouse"`
	Relational *Relational `mapstructure:"relational"`
	PubSub     *PubSub     `mapstructure:"pubsub"`
}

// URLSet is a named group of URLs configured together, sharing the same
// check rules. Checks maps a section (title, description, ...) to
// check-name -> asserted value.
type URLSet struct {
	Name   string                     `mapstructure:"name"`
	URLs   []string                   `mapstructure:"urls"`
	Checks map[string]map[string]bool `mapstructure:"checks"`
}

// Module is one scheduled module invocation: which backend its check
// results go to, which urlsets it covers and free-form settings.
type Module struct {
	Database Database               `mapstructure:"database"`
	URLSets  []string               `mapstructure:"urlsets"`
	Settings map[string]interface{} `mapstructure:"settings"`
}

// Config is an explicit configuration snapshot, created once per process
// entry point and passed by reference into module constructors. No global
// state survives between runs.
type Config struct {
	Databases Databases         `mapstructure:"databases"`
	URLSets   []URLSet          `mapstructure:"urlsets"`
	Modules   map[string]Module `mapstructure:"modules"`

	// Hash identifies this snapshot; raw documents carry it as provenance.
	Hash string `mapstructure:"-"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Hash = hash(&cfg)

	return &cfg, nil
}

func (c *Config) Validate() error {
	for name, module := range c.Modules {
		if !module.Database.Valid() {
			return &errutil.ConfigurationInvalidError{
				Key:    "modules." + name + ".database",
				Reason: "must be one of: warehouse, mongodb",
			}
		}

		for _, urlset := range module.URLSets {
			if c.URLSet(urlset) == nil {
				return &errutil.ConfigurationInvalidError{
					Key:    "modules." + name + ".urlsets",
					Reason: "unknown urlset " + urlset,
				}
			}
		}
	}

	return nil
}

func (c *Config) URLSet(name string) *URLSet {
	for i := range c.URLSets {
		if c.URLSets[i].Name == name {
			return &c.URLSets[i]
		}
	}

	return nil
}

// ModuleConfig returns the named module block or a configuration-missing
// error naming the key path.
func (c *Config) ModuleConfig(name string) (Module, error) {
	module, ok := c.Modules[name]
	if !ok {
		return Module{}, &errutil.ConfigurationMissingError{Key: "modules." + name}
	}

	return module, nil
}

// URLSetNames lists all configured urlset names, the warehouse needs them
// to initialize per-urlset check tables.
func (c *Config) URLSetNames() []string {
	names := make([]string, len(c.URLSets))
	for i, urlset := range c.URLSets {
		names[i] = urlset.Name
	}

	return names
}

func hash(c *Config) string {
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:])
}
