package risk

import (
	"context"
	"sync"

	"github.com/peershare/warden/internal/domain"
)

// ItemError reports a failed item in a batch.
type ItemError struct {
	Index     int    `json:"index"`
	ProductID string `json:"productId,omitempty"`
	RenterID  string `json:"renterId,omitempty"`
	Error     string `json:"error"`
}

// BatchResult collects per-item outcomes of a bulk operation. One item's
// failure never aborts the batch.
type BatchResult struct {
	Successful int                      `json:"successful"`
	Failed     int                      `json:"failed"`
	Results    []*domain.RiskAssessment `json:"results"`
	Errors     []ItemError              `json:"errors,omitempty"`
}

// BulkAssess evaluates each triple independently with bounded concurrency.
func (s *Scorer) BulkAssess(ctx context.Context, items []AssessInput, maxWorkers int) *BatchResult {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	type slot struct {
		assessment *domain.RiskAssessment
		err        error
	}

	slots := make([]slot, len(items))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxWorkers)

	for i, item := range items {
		wg.Add(1)
		go func(idx int, in AssessInput) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			a, err := s.Assess(ctx, in)
			slots[idx] = slot{assessment: a, err: err}
		}(i, item)
	}

	wg.Wait()

	out := &BatchResult{}
	for i, sl := range slots {
		if sl.err != nil {
			out.Failed++
			out.Errors = append(out.Errors, ItemError{
				Index:     i,
				ProductID: items[i].ProductID,
				RenterID:  items[i].RenterID,
				Error:     sl.err.Error(),
			})
			continue
		}
		out.Successful++
		out.Results = append(out.Results, sl.assessment)
	}

	return out
}
