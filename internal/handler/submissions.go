package handler

import (
	"net/http"
	"strings"

	"iclr-explorer/internal/metrics"
	"iclr-explorer/internal/models"
	"iclr-explorer/internal/repository"
	"iclr-explorer/internal/year"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type setYearRequest struct {
	Year string `json:"year" binding:"required"`
}

// SetYear changes the global year selection
func (h *Handler) SetYear(c *gin.Context) {
	var req setYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if !h.Years.Set(req.Year) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   year.ErrInvalidYear.Error() + ": available years are " + strings.Join(h.Years.Available(), ", "),
		})
		return
	}

	metrics.YearSwitches.WithLabelValues(req.Year).Inc()
	h.logger.Info("Global year changed", zap.String("year", req.Year))

	c.JSON(http.StatusOK, gin.H{"success": true, "currentYear": h.Years.Current()})
}

// GetYear returns the global year and the years that can be selected
func (h *Handler) GetYear(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"currentYear":    h.Years.Current(),
		"availableYears": h.Years.Available(),
	})
}

// GetAll returns every submission of the selected year
func (h *Handler) GetAll(c *gin.Context) {
	ctx := c.Request.Context()
	submissions, err := h.Submissions.FindAll(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": submissions, "name": h.collectionName(ctx)})
}

// GetAllPartial returns every submission with reviews reduced to scores
func (h *Handler) GetAllPartial(c *gin.Context) {
	ctx := c.Request.Context()
	submissions, err := h.Submissions.FindAllPartial(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": submissions, "name": h.collectionName(ctx)})
}

// GetPaginated returns one page of submissions with the filtered total
func (h *Handler) GetPaginated(c *gin.Context) {
	ctx := c.Request.Context()
	limit := atoiOr(c.Query("limit"), 0)
	skip := atoiOr(c.Query("skip"), 0)

	page, err := h.Submissions.FindPaginated(ctx, limit, skip, c.Query("search"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       page.Items,
		"totalCount": page.TotalCount,
		"name":       h.collectionName(ctx),
	})
}

func (h *Handler) respondList(c *gin.Context, submissions []*models.Submission, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, submissions)
}

// FindByTitle searches titles case-insensitively
func (h *Handler) FindByTitle(c *gin.Context) {
	submissions, err := h.Submissions.FindByTitle(c.Request.Context(), c.Param("title"))
	h.respondList(c, submissions, err)
}

// FindByAuthor searches author names case-insensitively
func (h *Handler) FindByAuthor(c *gin.Context) {
	submissions, err := h.Submissions.FindByAuthor(c.Request.Context(), c.Param("author"))
	h.respondList(c, submissions, err)
}

// FindByDecision searches decisions case-insensitively
func (h *Handler) FindByDecision(c *gin.Context) {
	submissions, err := h.Submissions.FindByDecision(c.Request.Context(), c.Param("decision"))
	h.respondList(c, submissions, err)
}

// FindByAbstract searches abstracts case-insensitively
func (h *Handler) FindByAbstract(c *gin.Context) {
	submissions, err := h.Submissions.FindByAbstract(c.Request.Context(), c.Param("abstract"))
	h.respondList(c, submissions, err)
}

// FindByYearField searches the year field inside the selected partition
func (h *Handler) FindByYearField(c *gin.Context) {
	submissions, err := h.Submissions.FindByYearField(c.Request.Context(), c.Param("year"))
	h.respondList(c, submissions, err)
}

// GetBibliography returns the citation fields of every submission
func (h *Handler) GetBibliography(c *gin.Context) {
	entries, err := h.Submissions.FindBibliography(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GetByID returns one submission
func (h *Handler) GetByID(c *gin.Context) {
	id, err := repository.ParseID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	submission, err := h.Submissions.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, submission)
}

// GetMetaValues returns only the review values of the submission at ?url=
func (h *Handler) GetMetaValues(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	submission, err := h.Submissions.FindByURL(c.Request.Context(), url)
	if err != nil {
		h.respondError(c, err)
		return
	}

	values := make([]models.ReviewValues, 0, len(submission.MetaReviews))
	for _, mr := range submission.MetaReviews {
		values = append(values, mr.Values)
	}
	c.JSON(http.StatusOK, values)
}

// GetRandom returns a random sample of submissions
func (h *Handler) GetRandom(c *gin.Context) {
	submissions, err := h.Submissions.SampleRandom(c.Request.Context(), atoiOr(c.Param("num"), 1))
	h.respondList(c, submissions, err)
}

type updateDecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// UpdateDecision corrects the decision of one submission
func (h *Handler) UpdateDecision(c *gin.Context) {
	id, err := repository.ParseID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req updateDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.Submissions.UpdateDecision(c.Request.Context(), id, req.Decision); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Decision updated", zap.Int64("id", id), zap.String("decision", req.Decision))
	c.JSON(http.StatusOK, gin.H{"success": true, "_id": id, "decision": req.Decision})
}

// DeleteSubmission removes one submission
func (h *Handler) DeleteSubmission(c *gin.Context) {
	id, err := repository.ParseID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	n, err := h.Submissions.DeleteByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": n})
}

type promptURLRequest struct {
	URL      string `json:"url" binding:"required"`
	Task     string `json:"task" binding:"required"`
	Rebuttal *int   `json:"rebuttal"`
}

// PromptByURL labels the submission at url with the given template and
// answers with the plain-text label
func (h *Handler) PromptByURL(c *gin.Context) {
	var req promptURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if h.Predictor == nil {
		h.respondError(c, errLabelerNotConfigured)
		return
	}

	rebuttal := models.RebuttalUnknown
	if req.Rebuttal != nil {
		rebuttal = *req.Rebuttal
	}
	if err := repository.ValidateRebuttal(rebuttal); err != nil {
		h.respondError(c, err)
		return
	}

	label, err := h.Predictor.LabelAndStore(c.Request.Context(), req.URL, req.Task, rebuttal)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.String(http.StatusOK, string(label))
}
