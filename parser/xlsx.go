package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/orderdoc/layout"
)

// XLSXParser reads spreadsheet order reports. Each non-empty sheet
// becomes one grid page, numbered in sheet order.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx", "xlsm"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var (
		pages  []layout.Page
		sheets []string
	)
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			slog.Warn("parser: sheet unreadable", "path", path, "sheet", sheet, "error", err)
			continue
		}
		rows = trimEmptyRows(rows)
		if len(rows) == 0 {
			continue
		}
		pages = append(pages, gridPage(len(pages)+1, rows))
		sheets = append(sheets, sheet)
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}

	return &ParseResult{
		Pages:  pages,
		Method: "grid",
		Metadata: map[string]string{
			"sheets":      strings.Join(sheets, ","),
			"sheet_count": strconv.Itoa(len(sheets)),
		},
	}, nil
}

// trimEmptyRows drops rows whose cells are all blank.
func trimEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
