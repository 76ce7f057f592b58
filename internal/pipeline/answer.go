package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/observability"
)

const generatePurpose = "generate"

// Generator produces the grounded answer. Generation is expensive and not
// idempotent, so a failed call is retried at most once.
type Generator struct {
	model       domain.LanguageModel
	temperature float64
	retryDelay  time.Duration
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(model domain.LanguageModel, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Generator {
	return &Generator{
		model:       model,
		temperature: opts.GenerationTemperature,
		retryDelay:  opts.GenerationRetryDelay,
		metrics:     metrics,
		logger:      logger,
	}
}

// Answer makes one generation call for the whole filtered context. highlight
// is passed through untouched.
func (g *Generator) Answer(ctx context.Context, query string, filtered domain.FilteredContext, highlight *domain.CountyRef) (domain.Answer, error) {
	req, err := answerRequest(query, filtered, g.temperature)
	if err != nil {
		return domain.Answer{}, domain.Unavailable("generate answer", err)
	}

	var text string
	attempt := 0
	op := func() error {
		attempt++
		out, err := g.model.Generate(ctx, req)
		if err == nil && strings.TrimSpace(out) == "" {
			err = errors.New("model returned an empty answer")
		}
		if err != nil {
			g.metrics.LLMCalls.WithLabelValues(generatePurpose, "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			g.logger.Warn("answer generation failed", "attempt", attempt, "error", err)
			return err
		}
		g.metrics.LLMCalls.WithLabelValues(generatePurpose, "success").Inc()
		text = strings.TrimSpace(out)
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(g.retryDelay), 1)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return domain.Answer{}, domain.Unavailable("generate answer", err)
	}
	return domain.Answer{Text: text, Highlight: highlight}, nil
}
