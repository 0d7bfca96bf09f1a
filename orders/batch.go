package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brunobiangulo/orderdoc/layout"
)

// Document is one source document of a batch.
type Document struct {
	Name  string        `json:"name"`
	Pages []layout.Page `json:"pages"`
}

// BatchResult pairs a document with its outcome.
type BatchResult struct {
	Name   string          `json:"name"`
	Result *DocumentResult `json:"result,omitempty"`
	Err    error           `json:"-"`
}

// ParseBatch parses independent documents concurrently, bounded by
// Config.Concurrency. Results are in input order. A document that had not
// started when ctx was cancelled gets ctx.Err(); one cancelled midway
// keeps its parsed pages.
func (p *Parser) ParseBatch(ctx context.Context, docs []Document) []BatchResult {
	results := make([]BatchResult, len(docs))
	if len(docs) == 0 {
		return results
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		sem   = make(chan struct{}, p.cfg.Concurrency)
		done  int
		start = time.Now()
	)

	for i, d := range docs {
		results[i].Name = d.Name
		wg.Add(1)
		go func(i int, d Document) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}

			res, err := p.ParseDocument(ctx, d.Pages)
			results[i].Result = res
			results[i].Err = err

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			p.log.Info("orders: batch document done",
				"name", d.Name, "progress", fmt.Sprintf("%d/%d", n, len(docs)),
				"elapsed", time.Since(start).Round(time.Millisecond))
		}(i, d)
	}

	wg.Wait()
	return results
}
