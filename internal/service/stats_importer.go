package service

import (
	"context"
	"io"
	"strings"

	"iclr-explorer/internal/models"
	"iclr-explorer/internal/repository"

	"go.uber.org/zap"
)

// statsRecord is one exported leaderboard line. Exports that refer to prompts
// by number instead of text are not importable.
type statsRecord struct {
	Prompt      interface{}         `json:"prompt"`
	PromptType  *int                `json:"prompt_type"`
	Predictions []models.StatsEntry `json:"predictions"`
}

// StatsImporter replaces the stored prediction leaderboard from an export.
type StatsImporter struct {
	stats  repository.StatsRepository
	logger *zap.Logger
}

// NewStatsImporter creates a new stats importer
func NewStatsImporter(stats repository.StatsRepository, logger *zap.Logger) *StatsImporter {
	return &StatsImporter{stats: stats, logger: logger}
}

// Import reads a JSON array or JSON Lines export and replaces every stored
// record with it. When a prompt repeats, the last record wins and the earlier
// ones count as skipped.
func (i *StatsImporter) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	records, err := decodeStream[statsRecord](r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	byPrompt := make(map[string]int)
	var all []*models.PredictionStats

	for _, rec := range records {
		text, ok := rec.Prompt.(string)
		text = strings.TrimSpace(text)
		if !ok || text == "" {
			i.logger.Warn("Skipping stats record without prompt text", zap.Any("prompt", rec.Prompt))
			res.Skipped++
			continue
		}

		stats := &models.PredictionStats{Prompt: text, PromptType: models.DefaultPromptType, Predictions: rec.Predictions}
		if rec.PromptType != nil {
			stats.PromptType = *rec.PromptType
		}

		if idx, seen := byPrompt[text]; seen {
			all[idx] = stats
			res.Skipped++
			continue
		}
		byPrompt[text] = len(all)
		all = append(all, stats)
	}

	n, err := i.stats.ReplaceAll(ctx, all)
	if err != nil {
		return res, err
	}
	res.Imported = n

	i.logger.Info("Prediction stats import finished",
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped))
	return res, nil
}
