package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/brunobiangulo/orderdoc/layout"
)

// CSVParser reads marketplace order reports exported as CSV. The whole
// file becomes one grid page with the header record on top.
type CSVParser struct{}

func (p *CSVParser) SupportedFormats() []string { return []string{"csv", "tsv"} }

func (p *CSVParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		r.Comma = '\t'
	}

	var records [][]string
	for {
		if len(records)%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		records = append(records, stripBOM(rec))
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no data found in CSV")
	}

	return &ParseResult{
		Pages:  []layout.Page{gridPage(1, records)},
		Method: "grid",
		Metadata: map[string]string{
			"row_count": strconv.Itoa(len(records)),
		},
	}, nil
}

func stripBOM(rec []string) []string {
	if len(rec) > 0 {
		rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
	}
	return rec
}
