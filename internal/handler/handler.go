package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"iclr-explorer/internal/partition"
	"iclr-explorer/internal/repository"
	"iclr-explorer/internal/service"
	"iclr-explorer/internal/year"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports database reachability for the health check.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer dispatches to. Predictor may be
// nil when no labeler is configured.
type Deps struct {
	Years       *year.Registry
	Submissions repository.SubmissionRepository
	Predictions repository.PredictionRepository
	Stats       repository.StatsRepository
	Predictor   *service.Predictor
	Evaluator   *service.Evaluator
	DB          Pinger
	Conference  string
}

// Handler handles HTTP requests
type Handler struct {
	Deps
	started time.Time
	logger  *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{
		Deps:    deps,
		started: time.Now(),
		logger:  logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	iclr := r.Group("/api/iclr")
	{
		// Year selection
		iclr.POST("/year", h.SetYear)
		iclr.GET("/year", h.GetYear)

		// Listing and search
		iclr.GET("", h.GetAll)
		iclr.GET("/partial", h.GetAllPartial)
		iclr.GET("/paginated", h.GetPaginated)
		iclr.GET("/title/:title", h.FindByTitle)
		iclr.GET("/author/:author", h.FindByAuthor)
		iclr.GET("/decision/:decision", h.FindByDecision)
		iclr.GET("/abstract/:abstract", h.FindByAbstract)
		iclr.GET("/id/:id", h.GetByID)
		iclr.GET("/meta", h.GetMetaValues)
		iclr.GET("/random/:num", h.GetRandom)
		iclr.GET("/year/:year", h.FindByYearField)
		iclr.GET("/bib", h.GetBibliography)

		// Maintenance
		iclr.PUT("/decision/:id", h.UpdateDecision)
		iclr.DELETE("/delete/:id", h.DeleteSubmission)

		// Labeling
		iclr.POST("/prompt/url", h.PromptByURL)
	}

	prompt := r.Group("/api/prompt")
	{
		prompt.POST("/prediction", h.GetPrediction)
		prompt.POST("/all_predictions_by_paper_id", h.GetPredictionsByPaper)
		prompt.POST("/all_predictions_by_prompt", h.GetPredictionsByPrompt)
		prompt.POST("/all_predictions_by_latest_prompt", h.GetLatestPredictions)
		prompt.POST("/predictions_by_paper_ids_and_prompt_and_rebuttal", h.GetPredictionBatch)
		prompt.POST("/predictions_by_prompt_and_rebuttal", h.GetPredictionsByPromptAndRebuttal)
		prompt.DELETE("/prediction", h.DeletePrediction)
		prompt.DELETE("/year/:year", h.PurgeYear)
	}

	stats := r.Group("/api/metrics")
	{
		stats.POST("/confusion", h.Confusion)
		stats.POST("/compare", h.CompareRebuttal)
		stats.GET("/prompts", h.PromptOverview)
		stats.POST("/mismatches", h.Mismatches)
	}

	stored := r.Group("/api/predictionStats")
	{
		stored.POST("/get", h.GetStats)
		stored.GET("/all", h.GetAllStats)
		stored.GET("/type/:prompt_type", h.GetStatsByPromptType)
		stored.GET("/year/:year", h.GetStatsByYear)
		stored.GET("/conference/:conference", h.GetStatsByConference)
		stored.POST("/create", h.CreateStats)
		stored.PUT("/update/:prompt", h.UpdateStats)
		stored.DELETE("/delete/:prompt", h.DeleteStats)
		stored.DELETE("/deleteAll", h.DeleteAllStats)
		stored.GET("/summary", h.StatsSummary)
	}

	// Health check
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// respondError maps domain errors to HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	var pe *repository.PersistenceError
	switch {
	case errors.Is(err, year.ErrInvalidYear),
		errors.Is(err, repository.ErrSubmissionNotFound),
		errors.Is(err, repository.ErrInvalidIdentifier),
		errors.Is(err, repository.ErrInvalidRebuttal):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrPredictionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrStatsExists):
		status = http.StatusConflict
	case errors.Is(err, service.ErrLabelingFailed),
		errors.Is(err, partition.ErrUnknownPartition):
		// 500 with the underlying message
	case errors.As(err, &pe):
		// driver details stay in the log
		message = pe.Public()
	default:
		message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{"error": message})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// collectionName names the year-scoped collection a response was read from.
func (h *Handler) collectionName(ctx context.Context) string {
	return strings.ToLower(h.Conference) + "_" + h.Years.FromContext(ctx)
}

// HealthCheck reports service and database status
func (h *Handler) HealthCheck(c *gin.Context) {
	dbStatus := "connected"
	status := http.StatusOK
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			h.logger.Warn("Database ping failed", zap.Error(err))
			dbStatus = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}

	health := "healthy"
	if status != http.StatusOK {
		health = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":      health,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(h.started).Seconds(),
		"currentYear": h.Years.Current(),
		"database":    gin.H{"status": dbStatus},
		"labeler":     h.Predictor != nil,
	})
}

// paperID accepts an identifier sent either as a JSON number or a string.
type paperID int64

func (p *paperID) UnmarshalJSON(b []byte) error {
	id, err := repository.ParseID(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*p = paperID(id)
	return nil
}

func atoiOr(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
