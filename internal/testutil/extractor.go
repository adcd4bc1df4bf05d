package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/well-timeline/backend/internal/extract"
	"github.com/well-timeline/backend/internal/models"
)

// ScriptedExtractor returns canned results keyed by intervention index.
type ScriptedExtractor struct {
	mu      sync.Mutex
	results map[int][]models.ExtractionResult
	last    map[int]models.ExtractionResult
	errs    map[int]error
	calls   []int

	// Gate, when set, is received from before each extraction returns.
	Gate chan struct{}
}

var _ extract.Extractor = (*ScriptedExtractor)(nil)

// NewScriptedExtractor creates an extractor with no scripted answers.
func NewScriptedExtractor() *ScriptedExtractor {
	return &ScriptedExtractor{
		results: make(map[int][]models.ExtractionResult),
		last:    make(map[int]models.ExtractionResult),
		errs:    make(map[int]error),
	}
}

// On queues a result for index. Queued results are returned in order; once
// the queue is drained the last result returned repeats.
func (s *ScriptedExtractor) On(index int, payload models.InterventionPayload, resumen string) *ScriptedExtractor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[index] = append(s.results[index], models.ExtractionResult{
		Resumen:  resumen,
		Mode:     "breve",
		Payload:  payload,
		Attempts: 1,
	})
	return s
}

// Fail makes extraction of index return err.
func (s *ScriptedExtractor) Fail(index int, err error) *ScriptedExtractor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[index] = err
	return s
}

// Calls returns the indices extracted so far.
func (s *ScriptedExtractor) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

func (s *ScriptedExtractor) Extract(ctx context.Context, item models.RawIntervention) (*models.ExtractionResult, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, item.Index)

	if err, ok := s.errs[item.Index]; ok {
		return nil, err
	}
	if queue := s.results[item.Index]; len(queue) > 0 {
		s.last[item.Index] = queue[0]
		s.results[item.Index] = queue[1:]
	}
	res, ok := s.last[item.Index]
	if !ok {
		return nil, fmt.Errorf("no scripted result for intervention %d", item.Index)
	}
	return &res, nil
}
