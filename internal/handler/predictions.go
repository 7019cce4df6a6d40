package handler

import (
	"fmt"
	"net/http"

	"iclr-explorer/internal/models"
	"iclr-explorer/internal/prompt"
	"iclr-explorer/internal/repository"
	"iclr-explorer/internal/service"
	"iclr-explorer/internal/year"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errLabelerNotConfigured = fmt.Errorf("%w: labeler not configured", service.ErrLabelingFailed)

// missingPrediction marks a requested paper without a stored prediction.
const missingPrediction = "O"

type paperPromptRequest struct {
	PaperID paperID `json:"paperId" binding:"required"`
	Prompt  string  `json:"prompt" binding:"required"`
}

type paperRequest struct {
	PaperID paperID `json:"paper_id" binding:"required"`
}

type promptRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type promptRebuttalRequest struct {
	Prompt   string `json:"prompt" binding:"required"`
	Rebuttal int    `json:"rebuttal"`
}

type batchRequest struct {
	PaperIDs []paperID `json:"paper_ids"`
	Prompt   string    `json:"prompt" binding:"required"`
	Rebuttal int       `json:"rebuttal"`
}

type batchEntry struct {
	PaperID    int64  `json:"paper_id"`
	Prompt     string `json:"prompt"`
	Rebuttal   int    `json:"rebuttal"`
	Prediction string `json:"prediction"`
}

// GetPrediction returns the latest prediction of a paper under a prompt
func (h *Handler) GetPrediction(c *gin.Context) {
	var req paperPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	p, err := h.Predictions.FindByPaperAndPrompt(c.Request.Context(), int64(req.PaperID), prompt.Key(req.Prompt))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetPredictionsByPaper returns every prediction of a paper
func (h *Handler) GetPredictionsByPaper(c *gin.Context) {
	var req paperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	predictions, err := h.Predictions.FindAllByPaper(c.Request.Context(), int64(req.PaperID))
	h.respondPredictions(c, predictions, err)
}

// GetPredictionsByPrompt returns every prediction under a prompt
func (h *Handler) GetPredictionsByPrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	predictions, err := h.Predictions.FindAllByPrompt(c.Request.Context(), prompt.Key(req.Prompt))
	h.respondPredictions(c, predictions, err)
}

// GetLatestPredictions returns the newest prediction of every paper
func (h *Handler) GetLatestPredictions(c *gin.Context) {
	predictions, err := h.Predictions.FindLatestPerPaper(c.Request.Context())
	h.respondPredictions(c, predictions, err)
}

// GetPredictionsByPromptAndRebuttal returns one evaluation batch
func (h *Handler) GetPredictionsByPromptAndRebuttal(c *gin.Context) {
	var req promptRebuttalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := repository.ValidateRebuttal(req.Rebuttal); err != nil {
		h.respondError(c, err)
		return
	}

	predictions, err := h.Predictions.FindByPromptAndRebuttal(c.Request.Context(), prompt.Key(req.Prompt), req.Rebuttal)
	h.respondPredictions(c, predictions, err)
}

// GetPredictionBatch answers one entry per requested paper, in request order,
// with "O" for papers that have no prediction
func (h *Handler) GetPredictionBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := repository.ValidateRebuttal(req.Rebuttal); err != nil {
		h.respondError(c, err)
		return
	}

	ids := make([]int64, len(req.PaperIDs))
	for i, id := range req.PaperIDs {
		ids[i] = int64(id)
	}

	found, err := h.Predictions.FindBatchByPaperIDsPromptRebuttal(c.Request.Context(), ids, prompt.Key(req.Prompt), req.Rebuttal)
	if err != nil {
		h.respondError(c, err)
		return
	}

	byPaper := make(map[int64]models.Label, len(found))
	for _, p := range found {
		byPaper[p.PaperID] = p.Prediction
	}

	out := make([]batchEntry, 0, len(ids))
	for _, id := range ids {
		label := missingPrediction
		if l, ok := byPaper[id]; ok {
			label = string(l)
		}
		out = append(out, batchEntry{PaperID: id, Prompt: req.Prompt, Rebuttal: req.Rebuttal, Prediction: label})
	}
	c.JSON(http.StatusOK, out)
}

// DeletePrediction removes the predictions of a paper under a prompt
func (h *Handler) DeletePrediction(c *gin.Context) {
	var req paperPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	n, err := h.Predictions.DeleteByPaperAndPrompt(c.Request.Context(), int64(req.PaperID), prompt.Key(req.Prompt))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": n})
}

// PurgeYear removes every prediction of one year
func (h *Handler) PurgeYear(c *gin.Context) {
	y := c.Param("year")
	if !h.Years.IsValid(y) {
		h.respondError(c, fmt.Errorf("%w: %s", year.ErrInvalidYear, y))
		return
	}

	n, err := h.Predictions.DeleteAllForYear(c.Request.Context(), y)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Predictions purged", zap.String("year", y), zap.Int64("count", n))
	c.JSON(http.StatusOK, gin.H{"deleted_count": n, "year": y})
}

func (h *Handler) respondPredictions(c *gin.Context, predictions []*models.Prediction, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, predictions)
}
