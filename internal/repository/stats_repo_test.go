package repository

import (
	"context"
	"testing"

	"iclr-explorer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaderboard() []*models.PredictionStats {
	return []*models.PredictionStats{
		{Prompt: "Short prompt", PromptType: 0, Predictions: []models.StatsEntry{
			{Year: 2024, Conference: "ICLR", NumberOfPredictions: 10, RebuttalInReview: 0, TP: 4, FP: 1, FN: 1, TN: 4},
			{Year: 2025, Conference: "ICLR", NumberOfPredictions: 10, RebuttalInReview: 1, TP: 5, FP: 0, FN: 0, TN: 5},
		}},
		{Prompt: "Optimized prompt", PromptType: 1, Predictions: []models.StatsEntry{
			{Year: 2024, Conference: "ICML", NumberOfPredictions: 4, RebuttalInReview: 0, TP: 0, FP: 0, FN: 2, TN: 2},
		}},
	}
}

func TestStats_ReplaceAndFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.stats.ReplaceAll(ctx, leaderboard())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := f.stats.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Short prompt", all[0].Prompt)
	assert.Len(t, all[0].Predictions, 2)

	byPrompt, err := f.stats.FindByPrompt(ctx, "Optimized prompt")
	require.NoError(t, err)
	require.Len(t, byPrompt, 1)
	assert.Equal(t, 1, byPrompt[0].PromptType)

	byType, err := f.stats.FindByPromptType(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, byType, 1)

	t.Run("year returns whole records", func(t *testing.T) {
		byYear, err := f.stats.FindByYear(ctx, 2025)
		require.NoError(t, err)
		require.Len(t, byYear, 1)
		assert.Len(t, byYear[0].Predictions, 2)

		none, err := f.stats.FindByYear(ctx, 2019)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	byConf, err := f.stats.FindByConference(ctx, "ICML")
	require.NoError(t, err)
	require.Len(t, byConf, 1)
	assert.Equal(t, "Optimized prompt", byConf[0].Prompt)

	// Replacing drops what was stored before.
	n, err = f.stats.ReplaceAll(ctx, leaderboard()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	all, err = f.stats.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStats_CreateUpsertDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := &models.PredictionStats{Prompt: "  Fresh prompt ", PromptType: -1, Predictions: []models.StatsEntry{{NumberOfPredictions: 3, TP: 3}}}
	require.NoError(t, f.stats.Create(ctx, s))
	assert.NotZero(t, s.ID)

	err := f.stats.Create(ctx, &models.PredictionStats{Prompt: "Fresh prompt"})
	assert.ErrorIs(t, err, ErrStatsExists)

	found, err := f.stats.FindByPrompt(ctx, "Fresh prompt")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, models.DefaultStatsYear, found[0].Predictions[0].Year)
	assert.Equal(t, models.DefaultStatsConference, found[0].Predictions[0].Conference)

	promptType := 2
	updated, err := f.stats.Upsert(ctx, "Fresh prompt", StatsUpdate{PromptType: &promptType})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.PromptType)
	assert.Len(t, updated.Predictions, 1, "entries kept when not given")

	updated, err = f.stats.Upsert(ctx, "Fresh prompt", StatsUpdate{Predictions: []models.StatsEntry{{Year: 2026, TN: 1}, {Year: 2026, FP: 1}}})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.PromptType)
	assert.Len(t, updated.Predictions, 2)

	created, err := f.stats.Upsert(ctx, "Brand new", StatsUpdate{})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPromptType, created.PromptType)
	assert.Empty(t, created.Predictions)

	n, err := f.stats.DeleteByPrompt(ctx, "Fresh prompt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = f.stats.DeleteByPrompt(ctx, "Fresh prompt")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.stats.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStats_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.stats.ReplaceAll(ctx, leaderboard())
	require.NoError(t, err)

	summary, err := f.stats.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 3)

	first := summary[0]
	assert.Equal(t, 0, first.PromptType)
	assert.Equal(t, 0, first.RebuttalInReview)
	assert.Equal(t, 10, first.TotalPapers)
	require.NotNil(t, first.AvgAccuracy)
	assert.InDelta(t, 0.8, *first.AvgAccuracy, 1e-9)
	assert.InDelta(t, 0.8, *first.AvgPrecision, 1e-9)

	// No positive predictions: precision undefined, recall zero.
	optimized := summary[2]
	assert.Equal(t, 1, optimized.PromptType)
	assert.Nil(t, optimized.AvgPrecision)
	require.NotNil(t, optimized.AvgRecall)
	assert.Zero(t, *optimized.AvgRecall)
}
