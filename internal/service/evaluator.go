package service

import (
	"context"
	"fmt"

	"iclr-explorer/internal/evaluation"
	"iclr-explorer/internal/models"
	"iclr-explorer/internal/prompt"
	"iclr-explorer/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const overviewConcurrency = 4

// RebuttalComparison holds the metrics of one prompt with and without rebuttal
// text. Unflagged covers predictions stored without a rebuttal setting.
type RebuttalComparison struct {
	Prompt          string             `json:"prompt"`
	WithoutRebuttal evaluation.Metrics `json:"withoutRebuttal"`
	WithRebuttal    evaluation.Metrics `json:"withRebuttal"`
	Unflagged       evaluation.Metrics `json:"unflagged"`
}

// Evaluator scores stored predictions against ground truth.
type Evaluator struct {
	predictions repository.PredictionRepository
	logger      *zap.Logger
}

// NewEvaluator creates a new evaluator service
func NewEvaluator(predictions repository.PredictionRepository, logger *zap.Logger) *Evaluator {
	return &Evaluator{predictions: predictions, logger: logger}
}

// Confusion computes the metrics of one (prompt, rebuttal) batch. promptText
// may be a full template or an already extracted key.
func (e *Evaluator) Confusion(ctx context.Context, promptText string, rebuttal int) (evaluation.Metrics, error) {
	if err := repository.ValidateRebuttal(rebuttal); err != nil {
		return evaluation.Metrics{}, err
	}
	outcomes, err := e.predictions.FindOutcomes(ctx, prompt.Key(promptText), rebuttal)
	if err != nil {
		return evaluation.Metrics{}, fmt.Errorf("failed to load outcomes: %w", err)
	}
	return evaluation.Compute(outcomes), nil
}

// CompareRebuttal computes every rebuttal bucket of a prompt concurrently.
func (e *Evaluator) CompareRebuttal(ctx context.Context, promptText string) (*RebuttalComparison, error) {
	key := prompt.Key(promptText)
	cmp := &RebuttalComparison{Prompt: key}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := e.Confusion(gctx, key, models.RebuttalExcluded)
		cmp.WithoutRebuttal = m
		return err
	})
	g.Go(func() error {
		m, err := e.Confusion(gctx, key, models.RebuttalIncluded)
		cmp.WithRebuttal = m
		return err
	})
	g.Go(func() error {
		m, err := e.Confusion(gctx, key, models.RebuttalUnknown)
		cmp.Unflagged = m
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cmp, nil
}

// Overview compares every prompt with stored predictions in the selected year.
func (e *Evaluator) Overview(ctx context.Context) ([]*RebuttalComparison, error) {
	prompts, err := e.predictions.DistinctPrompts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}

	out := make([]*RebuttalComparison, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for i, p := range prompts {
		i, p := i, p
		g.Go(func() error {
			cmp, err := e.CompareRebuttal(gctx, p)
			if err != nil {
				return err
			}
			out[i] = cmp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("Prompt overview computed", zap.Int("prompts", len(out)))
	return out, nil
}

// Mismatches lists scored predictions that disagree with the ground truth.
func (e *Evaluator) Mismatches(ctx context.Context, promptText string, rebuttal int) ([]evaluation.Mismatch, error) {
	if err := repository.ValidateRebuttal(rebuttal); err != nil {
		return nil, err
	}
	outcomes, err := e.predictions.FindOutcomes(ctx, prompt.Key(promptText), rebuttal)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}
	return evaluation.Mismatches(outcomes), nil
}
