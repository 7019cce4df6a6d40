package service

import (
	"context"
	"errors"
	"fmt"

	"iclr-explorer/internal/models"
	"iclr-explorer/internal/prompt"
	"iclr-explorer/internal/repository"

	"go.uber.org/zap"
)

// ErrLabelingFailed wraps any failure of the external labeler.
var ErrLabelingFailed = errors.New("labeling failed")

// Labeler classifies a composed prompt with free text.
type Labeler interface {
	Label(ctx context.Context, prompt string) (string, error)
}

// Predictor labels a submission's reviews with an LLM and stores the result.
type Predictor struct {
	submissions repository.SubmissionRepository
	predictions repository.PredictionRepository
	renderer    *prompt.Renderer
	labeler     Labeler
	model       string
	logger      *zap.Logger
}

// NewPredictor creates a new predictor service
func NewPredictor(
	submissions repository.SubmissionRepository,
	predictions repository.PredictionRepository,
	renderer *prompt.Renderer,
	labeler Labeler,
	model string,
	logger *zap.Logger,
) *Predictor {
	return &Predictor{
		submissions: submissions,
		predictions: predictions,
		renderer:    renderer,
		labeler:     labeler,
		model:       model,
		logger:      logger,
	}
}

// LabelAndStore renders the reviews of the submission at url into template,
// asks the labeler, and stores the normalized answer under the template's
// task key. Nothing is stored when the labeler fails.
func (p *Predictor) LabelAndStore(ctx context.Context, url, template string, rebuttal int) (models.Label, error) {
	if err := repository.ValidateRebuttal(rebuttal); err != nil {
		return "", err
	}

	sub, err := p.submissions.FindByURL(ctx, url)
	if err != nil {
		return "", err
	}
	if sub.MetaReviews == nil {
		return "", fmt.Errorf("%w: %s has no reviews", repository.ErrSubmissionNotFound, url)
	}

	text := p.renderer.RenderReviews(sub.MetaReviews, rebuttal == models.RebuttalIncluded)
	composed := prompt.Compose(template, text)

	raw, err := p.labeler.Label(ctx, composed)
	if err != nil {
		p.logger.Error("Labeler call failed",
			zap.Int64("paper_id", sub.ID),
			zap.Int("rebuttal", rebuttal),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrLabelingFailed, err)
	}

	label := models.NormalizeResponse(raw)

	stored, err := p.predictions.Create(ctx, repository.CreatePredictionInput{
		Prompt:     prompt.Key(template),
		PaperID:    sub.ID,
		PaperTitle: sub.Title,
		Rebuttal:   rebuttal,
		Label:      string(label),
		Model:      p.model,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store prediction: %w", err)
	}

	p.logger.Info("Submission labeled",
		zap.Int64("paper_id", sub.ID),
		zap.Int64("prediction_id", stored.ID),
		zap.Int("rebuttal", rebuttal),
		zap.String("label", string(label)))

	return label, nil
}
