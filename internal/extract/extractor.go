// Package extract turns the text of one intervention into a structured
// payload with an LLM, then repairs what the model left out using the text
// itself.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/normalize"
	"github.com/well-timeline/backend/internal/textutil"
)

// fallbackSummaryChars is the length of the summary used when the model
// answer cannot be decoded.
const fallbackSummaryChars = 300

// Extractor produces a structured result for one intervention.
type Extractor interface {
	Extract(ctx context.Context, item models.RawIntervention) (*models.ExtractionResult, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, item models.RawIntervention) (*models.ExtractionResult, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, item models.RawIntervention) (*models.ExtractionResult, error) {
	return f(ctx, item)
}

// Unavailable is the extractor used when no LLM is configured.
var Unavailable Extractor = ExtractorFunc(func(context.Context, models.RawIntervention) (*models.ExtractionResult, error) {
	return nil, ErrUnavailable
})

// LLMExtractor extracts with a chat model and retries transient failures.
type LLMExtractor struct {
	client     Client
	normalizer *normalize.Normalizer

	// Mode is the requested summary length.
	Mode DetailMode
	// MaxAttempts bounds calls to the model per extraction.
	MaxAttempts int
	// Backoff is the wait before the second attempt; it doubles after that.
	Backoff time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewLLMExtractor creates an extractor with three attempts and a one second
// initial backoff.
func NewLLMExtractor(client Client, n *normalize.Normalizer) *LLMExtractor {
	if n == nil {
		n = normalize.New(nil)
	}
	return &LLMExtractor{
		client:      client,
		normalizer:  n,
		Mode:        DetailAuto,
		MaxAttempts: 3,
		Backoff:     time.Second,
		sleep:       sleepContext,
	}
}

// Extract runs the model on item and returns the normalized result. Only
// transport failures are errors; an undecodable answer yields a result with
// a clipped summary and an empty payload.
func (e *LLMExtractor) Extract(ctx context.Context, item models.RawIntervention) (*models.ExtractionResult, error) {
	mode := PickDetail(e.Mode, item.Text)
	messages := BuildMessages(item, mode)

	content, attempts, err := e.complete(ctx, messages, item.Index)
	if err != nil {
		return nil, err
	}

	res, err := e.normalizer.Decode([]byte(content))
	if err != nil {
		log.Warnf("[Extract %d] Unparseable model answer, using text summary: %v", item.Index, err)
		res.Resumen = textutil.Clamp(textutil.Clean(item.Text), fallbackSummaryChars)
	} else {
		Repair(&res, item.Text)
	}
	if strings.TrimSpace(res.Resumen) == "" {
		res.Resumen = textutil.Clamp(textutil.Clean(item.Text), fallbackSummaryChars)
	}
	res.Mode = string(mode)
	res.Attempts = attempts
	return &res, nil
}

func (e *LLMExtractor) complete(ctx context.Context, messages []Message, index int) (string, int, error) {
	limit := e.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	wait := e.Backoff
	for attempt := 1; ; attempt++ {
		content, err := e.client.Complete(ctx, messages)
		if err == nil {
			return content, attempt, nil
		}
		if !Retryable(err) || attempt >= limit {
			return "", attempt, fmt.Errorf("extract intervention %d: %w", index, err)
		}
		log.Warnf("[Extract %d] Attempt %d/%d failed, retrying in %v: %v", index, attempt, limit, wait, err)
		if err := e.sleep(ctx, wait); err != nil {
			return "", attempt, err
		}
		wait *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var collapseSpace = regexp.MustCompile(`\s+`)

// Repair fills gaps in a decoded result from the intervention text: test
// and cement intervals from ranges quoted in the text, recovery sentences,
// fluids, blow descriptions and injectivity pressures. It also drops items
// the text does not support and normalizes the summary wording.
func Repair(res *models.ExtractionResult, text string) {
	norm := NormalizeDomainTypos(text)
	ranges := findContextRanges(norm)
	p := &res.Payload

	fillTestIntervals(p.Tests, ranges)
	for i := range p.Tests {
		t := &p.Tests[i]
		if t.RecuperadoTexto == nil {
			t.RecuperadoTexto = recoveredText(norm)
		}
		if t.FluidoRecuperado == nil {
			t.FluidoRecuperado = guessFluid(t.RecuperadoTexto)
		}
		t.FluidoRecuperado = fluidTerms(t.FluidoRecuperado)
		t.RecuperadoTexto = fluidTerms(t.RecuperadoTexto)
		if t.Sopro == nil {
			t.Sopro = soproBlock(norm)
		}
		t.Sopro = soproLabelled(t.Sopro)
		if t.Presion == nil && isInjectivityTest(*t) {
			t.Presion = injectivityPressure(norm)
		}
	}

	fillCementIntervals(p.Cementaciones, ranges)
	p.Cementaciones = filterCementaciones(p.Cementaciones)
	p.Punzados = filterPunzados(norm, p.Punzados)

	summary := aceite.ReplaceAllString(res.Resumen, "óleo")
	summary = strings.TrimSpace(collapseSpace.ReplaceAllString(summary, " "))
	res.Resumen = ensureBppMention(summary, norm)
}
