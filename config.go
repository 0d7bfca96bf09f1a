package orderdoc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/orderdoc/crop"
	"github.com/brunobiangulo/orderdoc/lineitems"
	"github.com/brunobiangulo/orderdoc/orders"
)

// Config holds all configuration for the orderdoc engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.orderdoc/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "orderdoc".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.orderdoc/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Page grouping and header detection
	YTolerance     float64  `json:"y_tolerance" yaml:"y_tolerance"`
	HeaderKeywords []string `json:"header_keywords,omitempty" yaml:"header_keywords,omitempty"`
	SearchDepth    int      `json:"search_depth" yaml:"search_depth"`
	AddressLines   int      `json:"address_lines" yaml:"address_lines"`

	// Concurrency bounds how many documents IngestBatch parses at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	LineItems LineItemConfig `json:"line_items" yaml:"line_items"`

	// Crop holds the default split; callers can override it per request.
	Crop crop.Options `json:"crop" yaml:"crop"`
}

// LineItemConfig is the file form of lineitems.Config. Empty lists keep
// the built-in defaults.
type LineItemConfig struct {
	Blacklist    []string        `json:"blacklist,omitempty" yaml:"blacklist,omitempty"`
	SKUPatterns  []PatternConfig `json:"sku_patterns,omitempty" yaml:"sku_patterns,omitempty"`
	StopPatterns []string        `json:"stop_patterns,omitempty" yaml:"stop_patterns,omitempty"`
	SkipPatterns []string        `json:"skip_patterns,omitempty" yaml:"skip_patterns,omitempty"`
	MaxQuantity  int             `json:"max_quantity" yaml:"max_quantity"`
}

// PatternConfig names one accepted SKU shape.
type PatternConfig struct {
	Name    string `json:"name" yaml:"name"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

// DefaultSplitRatio is the invoice share of a combined label/invoice page.
const DefaultSplitRatio = 0.45

// DefaultConfig returns a Config with the built-in extraction defaults.
// Database is stored in ~/.orderdoc/orderdoc.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:      "orderdoc",
		StorageDir:  "home",
		Concurrency: 4,
		LineItems: LineItemConfig{
			MaxQuantity: lineitems.DefaultMaxQuantity,
		},
		Crop: crop.Options{SplitRatio: DefaultSplitRatio},
	}
}

// LoadConfig reads a YAML or JSON config file over DefaultConfig and
// validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are in range and all patterns compile.
func (c *Config) Validate() error {
	if c.YTolerance < 0 {
		return fmt.Errorf("%w: y_tolerance must be >= 0", ErrInvalidConfig)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must be >= 0", ErrInvalidConfig)
	}
	if r := c.Crop.SplitRatio; r != 0 && (r <= 0 || r >= 1) {
		return fmt.Errorf("%w: crop.split_ratio %v must be in (0,1)", ErrInvalidConfig, r)
	}
	for _, s := range []*crop.Size{c.Crop.LabelSize, c.Crop.InvoiceSize} {
		if s != nil && (s.Width <= 0 || s.Height <= 0) {
			return fmt.Errorf("%w: crop target size %vx%v", ErrInvalidConfig, s.Width, s.Height)
		}
	}
	if _, err := c.LineItems.build(); err != nil {
		return err
	}
	return nil
}

// build compiles the file form into a lineitems.Config.
func (c LineItemConfig) build() (lineitems.Config, error) {
	out := lineitems.Config{
		Blacklist:   c.Blacklist,
		MaxQuantity: c.MaxQuantity,
	}
	if len(c.SKUPatterns) > 0 {
		named := make(map[string]string, len(c.SKUPatterns))
		order := make([]string, 0, len(c.SKUPatterns))
		for _, p := range c.SKUPatterns {
			if p.Name == "" {
				return out, fmt.Errorf("%w: sku pattern %q has no name", ErrInvalidConfig, p.Pattern)
			}
			named[p.Name] = p.Pattern
			order = append(order, p.Name)
		}
		pats, err := lineitems.CompilePatterns(named, order)
		if err != nil {
			return out, fmt.Errorf("%w: sku pattern: %v", ErrInvalidConfig, err)
		}
		out.SKUPatterns = pats
	}
	var err error
	if out.StopPatterns, err = compileAll("stop_patterns", c.StopPatterns); err != nil {
		return out, err
	}
	if out.SkipPatterns, err = compileAll("skip_patterns", c.SkipPatterns); err != nil {
		return out, err
	}
	return out, nil
}

func compileAll(key string, exprs []string) ([]*regexp.Regexp, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidConfig, key, i, err)
		}
		out[i] = re
	}
	return out, nil
}

// OrdersConfig maps the engine config onto the page pipeline.
func (c *Config) OrdersConfig() (orders.Config, error) {
	li, err := c.LineItems.build()
	if err != nil {
		return orders.Config{}, err
	}
	return orders.Config{
		YTolerance:     c.YTolerance,
		HeaderKeywords: c.HeaderKeywords,
		SearchDepth:    c.SearchDepth,
		AddressLines:   c.AddressLines,
		Concurrency:    c.Concurrency,
		LineItems:      li,
	}, nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "orderdoc"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".orderdoc", name+".db")
	}
}
