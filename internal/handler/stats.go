package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"iclr-explorer/internal/models"
	"iclr-explorer/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createStatsRequest struct {
	Prompt      string              `json:"prompt" binding:"required"`
	PromptType  *int                `json:"prompt_type"`
	Predictions []models.StatsEntry `json:"predictions"`
}

type updateStatsRequest struct {
	PromptType  *int                `json:"prompt_type"`
	Predictions []models.StatsEntry `json:"predictions"`
}

func (h *Handler) respondStats(c *gin.Context, stats []*models.PredictionStats, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func intParam(c *gin.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

// GetStats returns the stored stats of one prompt
func (h *Handler) GetStats(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	stats, err := h.Stats.FindByPrompt(c.Request.Context(), strings.TrimSpace(req.Prompt))
	h.respondStats(c, stats, err)
}

// GetAllStats returns the whole leaderboard
func (h *Handler) GetAllStats(c *gin.Context) {
	stats, err := h.Stats.FindAll(c.Request.Context())
	h.respondStats(c, stats, err)
}

// GetStatsByPromptType returns the stats of one prompt family
func (h *Handler) GetStatsByPromptType(c *gin.Context) {
	promptType, err := intParam(c, "prompt_type")
	if err != nil {
		h.badRequest(c, err)
		return
	}

	stats, err := h.Stats.FindByPromptType(c.Request.Context(), promptType)
	h.respondStats(c, stats, err)
}

// GetStatsByYear returns the prompts with a run in the given year
func (h *Handler) GetStatsByYear(c *gin.Context) {
	y, err := intParam(c, "year")
	if err != nil {
		h.badRequest(c, err)
		return
	}

	stats, err := h.Stats.FindByYear(c.Request.Context(), y)
	h.respondStats(c, stats, err)
}

// GetStatsByConference returns the prompts with a run at the given conference
func (h *Handler) GetStatsByConference(c *gin.Context) {
	stats, err := h.Stats.FindByConference(c.Request.Context(), c.Param("conference"))
	h.respondStats(c, stats, err)
}

// CreateStats stores a new leaderboard record
func (h *Handler) CreateStats(c *gin.Context) {
	var req createStatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		h.badRequest(c, errors.New("prompt must not be blank"))
		return
	}

	stats := &models.PredictionStats{
		Prompt:      req.Prompt,
		PromptType:  models.DefaultPromptType,
		Predictions: req.Predictions,
	}
	if req.PromptType != nil {
		stats.PromptType = *req.PromptType
	}

	if err := h.Stats.Create(c.Request.Context(), stats); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Prediction stats created", zap.Int64("id", stats.ID), zap.Int("entries", len(stats.Predictions)))
	c.JSON(http.StatusOK, stats)
}

// UpdateStats updates the record of a prompt, creating it when missing
func (h *Handler) UpdateStats(c *gin.Context) {
	var req updateStatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	stats, err := h.Stats.Upsert(c.Request.Context(), strings.TrimSpace(c.Param("prompt")), repository.StatsUpdate{
		PromptType:  req.PromptType,
		Predictions: req.Predictions,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// DeleteStats removes the record of a prompt
func (h *Handler) DeleteStats(c *gin.Context) {
	n, err := h.Stats.DeleteByPrompt(c.Request.Context(), strings.TrimSpace(c.Param("prompt")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": n})
}

// DeleteAllStats empties the leaderboard
func (h *Handler) DeleteAllStats(c *gin.Context) {
	n, err := h.Stats.DeleteAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Warn("Prediction stats cleared", zap.Int64("count", n))
	c.JSON(http.StatusOK, gin.H{"deleted_count": n})
}

// StatsSummary averages the leaderboard per prompt type and rebuttal setting
func (h *Handler) StatsSummary(c *gin.Context) {
	summary, err := h.Stats.Summary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
