// Package eval scores extraction quality against fixture documents with
// known line items and fields.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/orderdoc/orders"
	"github.com/brunobiangulo/orderdoc/parser"
)

// DocumentParser turns a file into extraction results. orderdoc.Engine
// satisfies it, as does LocalParser.
type DocumentParser interface {
	Parse(ctx context.Context, path string) (*orders.DocumentResult, error)
}

// LocalParser parses files without a database.
type LocalParser struct {
	registry *parser.Registry
	orders   *orders.Parser
}

// NewLocalParser builds a parser from a page pipeline config.
func NewLocalParser(cfg orders.Config) *LocalParser {
	return &LocalParser{registry: parser.NewRegistry(), orders: orders.New(cfg)}
}

// Parse detects the format, decodes the file and extracts its pages.
func (p *LocalParser) Parse(ctx context.Context, path string) (*orders.DocumentResult, error) {
	format, err := parser.DetectFormat(path)
	if err != nil {
		return nil, err
	}
	fp, err := p.registry.Get(format)
	if err != nil {
		return nil, err
	}
	parsed, err := fp.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	return p.orders.ParseDocument(ctx, parsed.Pages)
}

// Evaluator runs datasets through a DocumentParser.
type Evaluator struct {
	parser DocumentParser
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(p DocumentParser) *Evaluator {
	return &Evaluator{parser: p}
}

// Report holds the results of an evaluation run.
type Report struct {
	Dataset         string                      `json:"dataset"`
	TotalTests      int                         `json:"total_tests"`
	Passed          int                         `json:"passed"`
	Failed          int                         `json:"failed"`
	Metrics         AggregateMetrics            `json:"metrics"`
	CategoryMetrics map[string]AggregateMetrics `json:"category_metrics,omitempty"`
	Results         []TestResult                `json:"results"`
	RunTime         time.Duration               `json:"run_time"`
}

// AggregateMetrics holds averaged metrics across tests.
type AggregateMetrics struct {
	AvgPrecision        float64 `json:"avg_precision"`
	AvgRecall           float64 `json:"avg_recall"`
	AvgF1               float64 `json:"avg_f1"`
	AvgQuantityAccuracy float64 `json:"avg_quantity_accuracy"`
	AvgFieldAccuracy    float64 `json:"avg_field_accuracy"`
}

func (m *AggregateMetrics) add(r TestResult) {
	m.AvgPrecision += r.Items.Precision
	m.AvgRecall += r.Items.Recall
	m.AvgF1 += r.Items.F1
	m.AvgQuantityAccuracy += r.Items.QuantityAccuracy
	m.AvgFieldAccuracy += r.FieldAccuracy
}

func (m *AggregateMetrics) divide(n int) {
	if n == 0 {
		return
	}
	f := float64(n)
	m.AvgPrecision /= f
	m.AvgRecall /= f
	m.AvgF1 /= f
	m.AvgQuantityAccuracy /= f
	m.AvgFieldAccuracy /= f
}

// TestResult holds the result of a single fixture with diagnostics.
type TestResult struct {
	Name             string    `json:"name"`
	File             string    `json:"file"`
	Category         string    `json:"category,omitempty"`
	Items            ItemScore `json:"items"`
	FieldAccuracy    float64   `json:"field_accuracy"`
	FieldMismatches  []string  `json:"field_mismatches,omitempty"`
	MissedRejections []string  `json:"missed_rejections,omitempty"`
	Notes            []string  `json:"notes,omitempty"`
	Passed           bool      `json:"passed"`
	Error            string    `json:"error,omitempty"`
	ElapsedMs        int64     `json:"elapsed_ms"`
}

// Run executes every test of the dataset. It stops early only when ctx
// is cancelled.
func (e *Evaluator) Run(ctx context.Context, dataset Dataset) (*Report, error) {
	start := time.Now()
	report := &Report{
		Dataset:         dataset.Name,
		TotalTests:      len(dataset.Tests),
		CategoryMetrics: make(map[string]AggregateMetrics),
	}

	catCounts := make(map[string]int)
	metricsCount := 0

	for i, test := range dataset.Tests {
		if err := ctx.Err(); err != nil {
			report.RunTime = time.Since(start)
			return report, err
		}
		result := e.runTest(ctx, dataset.path(test), test)
		report.Results = append(report.Results, result)

		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		if result.Error != "" {
			status = "ERROR"
		}
		slog.Info("eval: test complete",
			"progress", fmt.Sprintf("%d/%d", i+1, len(dataset.Tests)),
			"status", status,
			"f1", fmt.Sprintf("%.2f", result.Items.F1),
			"qty", fmt.Sprintf("%.2f", result.Items.QuantityAccuracy),
			"fields", fmt.Sprintf("%.2f", result.FieldAccuracy),
			"elapsed_ms", result.ElapsedMs,
			"test", truncate(test.Name, 80))

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}

		// Errors contribute all zeros and would drag the averages down.
		if result.Error != "" {
			continue
		}
		metricsCount++
		report.Metrics.add(result)
		if test.Category != "" {
			catCounts[test.Category]++
			m := report.CategoryMetrics[test.Category]
			m.add(result)
			report.CategoryMetrics[test.Category] = m
		}
	}

	report.Metrics.divide(metricsCount)
	for cat, m := range report.CategoryMetrics {
		m.divide(catCounts[cat])
		report.CategoryMetrics[cat] = m
	}
	report.RunTime = time.Since(start)
	return report, nil
}

func (e *Evaluator) runTest(ctx context.Context, path string, test TestCase) TestResult {
	result := TestResult{Name: test.Name, File: test.File, Category: test.Category}
	start := time.Now()
	res, err := e.parser.Parse(ctx, path)
	result.ElapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Items = scoreItems(res.Lines(), test.Items)
	result.FieldAccuracy, result.FieldMismatches = scoreFields(res.Fields, test.Fields)
	result.MissedRejections = checkRejections(res, test.Rejected)
	result.Notes = res.Notes
	result.Passed = result.Items.F1 == 1 &&
		result.Items.QuantityAccuracy == 1 &&
		result.FieldAccuracy == 1 &&
		len(result.MissedRejections) == 0
	return result
}

// FormatReport produces a human-readable report string.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d\n",
		r.TotalTests, r.Passed, passRate(r.Passed, r.TotalTests), r.Failed)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "Aggregate Metrics:\n")
	fmt.Fprintf(&b, "  SKU Precision:      %.2f\n", r.Metrics.AvgPrecision)
	fmt.Fprintf(&b, "  SKU Recall:         %.2f\n", r.Metrics.AvgRecall)
	fmt.Fprintf(&b, "  SKU F1:             %.2f\n", r.Metrics.AvgF1)
	fmt.Fprintf(&b, "  Quantity Accuracy:  %.2f\n", r.Metrics.AvgQuantityAccuracy)
	fmt.Fprintf(&b, "  Field Accuracy:     %.2f\n\n", r.Metrics.AvgFieldAccuracy)

	// Per-category breakdown (sorted for deterministic output)
	if len(r.CategoryMetrics) > 0 {
		cats := make([]string, 0, len(r.CategoryMetrics))
		for cat := range r.CategoryMetrics {
			cats = append(cats, cat)
		}
		sort.Strings(cats)

		fmt.Fprintf(&b, "Per-Category Metrics:\n")
		for _, cat := range cats {
			m := r.CategoryMetrics[cat]
			fmt.Fprintf(&b, "  [%s] P=%.2f R=%.2f F1=%.2f Qty=%.2f Fields=%.2f\n",
				cat, m.AvgPrecision, m.AvgRecall, m.AvgF1, m.AvgQuantityAccuracy, m.AvgFieldAccuracy)
		}
		fmt.Fprintln(&b)
	}

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %d. %s\n", status, i+1, res.Name)
		if res.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(&b, "  P=%.2f R=%.2f F1=%.2f Qty=%.2f Fields=%.2f  (%dms)\n",
			res.Items.Precision, res.Items.Recall, res.Items.F1,
			res.Items.QuantityAccuracy, res.FieldAccuracy, res.ElapsedMs)
		for _, m := range res.Items.Missing {
			fmt.Fprintf(&b, "  missing: %s\n", m)
		}
		for _, u := range res.Items.Unexpected {
			fmt.Fprintf(&b, "  unexpected: %s\n", u)
		}
		for _, q := range res.Items.QuantityMismatches {
			fmt.Fprintf(&b, "  quantity: %s\n", q)
		}
		for _, f := range res.FieldMismatches {
			fmt.Fprintf(&b, "  field: %s\n", f)
		}
		for _, r := range res.MissedRejections {
			fmt.Fprintf(&b, "  not rejected: %s\n", r)
		}
	}

	return b.String()
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
