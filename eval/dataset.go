package eval

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Dataset is a collection of fixture documents with their expected output.
type Dataset struct {
	Name  string     `json:"name" yaml:"name"`
	Tests []TestCase `json:"tests" yaml:"tests"`

	// dir is where relative fixture paths are resolved.
	dir string
}

// TestCase is one fixture document.
type TestCase struct {
	Name     string `json:"name" yaml:"name"`
	File     string `json:"file" yaml:"file"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"` // marketplace or template name

	Items []ExpectedItem `json:"items" yaml:"items"`

	// Fields maps a field name (order_id, invoice_number, grand_total, ...)
	// to its expected value. An empty value expects the field to be missing.
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Rejected lists candidates that must be rejected, not extracted.
	Rejected []string `json:"rejected,omitempty" yaml:"rejected,omitempty"`
}

// ExpectedItem is one line item the fixture must produce.
type ExpectedItem struct {
	SKU      string `json:"sku" yaml:"sku"`
	Quantity int    `json:"quantity" yaml:"quantity"`
}

// LoadDataset reads a YAML dataset file. Fixture paths are relative to
// the dataset file.
func LoadDataset(path string) (Dataset, error) {
	var ds Dataset
	data, err := os.ReadFile(path)
	if err != nil {
		return ds, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return ds, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if ds.Name == "" {
		ds.Name = filepath.Base(path)
	}
	for i, tc := range ds.Tests {
		if tc.File == "" {
			return ds, fmt.Errorf("dataset %s: test %d has no file", path, i)
		}
		if tc.Name == "" {
			ds.Tests[i].Name = tc.File
		}
	}
	ds.dir = filepath.Dir(path)
	return ds, nil
}

// WithDir sets the directory relative fixture paths are resolved against.
func (d Dataset) WithDir(dir string) Dataset {
	d.dir = dir
	return d
}

func (d Dataset) path(tc TestCase) string {
	if filepath.IsAbs(tc.File) || d.dir == "" {
		return tc.File
	}
	return filepath.Join(d.dir, tc.File)
}
