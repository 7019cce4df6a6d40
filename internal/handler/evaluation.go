package handler

import (
	"net/http"

	"iclr-explorer/internal/repository"

	"github.com/gin-gonic/gin"
)

type compareRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// Confusion returns the confusion matrix and rates of one batch
func (h *Handler) Confusion(c *gin.Context) {
	var req promptRebuttalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := repository.ValidateRebuttal(req.Rebuttal); err != nil {
		h.respondError(c, err)
		return
	}

	m, err := h.Evaluator.Confusion(c.Request.Context(), req.Prompt, req.Rebuttal)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// CompareRebuttal returns the metrics of a prompt with and without rebuttals
func (h *Handler) CompareRebuttal(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	cmp, err := h.Evaluator.CompareRebuttal(c.Request.Context(), req.Prompt)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// PromptOverview compares every prompt with stored predictions
func (h *Handler) PromptOverview(c *gin.Context) {
	overview, err := h.Evaluator.Overview(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// Mismatches lists predictions that disagree with the decision
func (h *Handler) Mismatches(c *gin.Context) {
	var req promptRebuttalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := repository.ValidateRebuttal(req.Rebuttal); err != nil {
		h.respondError(c, err)
		return
	}

	mismatches, err := h.Evaluator.Mismatches(c.Request.Context(), req.Prompt, req.Rebuttal)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mismatches)
}
