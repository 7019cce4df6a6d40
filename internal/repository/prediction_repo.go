package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"iclr-explorer/internal/metrics"
	"iclr-explorer/internal/models"
	"iclr-explorer/internal/partition"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const predictionCols = "id, prompt, paper_id, paper_title, model, rebuttal, prediction, decision, created_at"

// DefaultModel is recorded when a prediction does not name its model.
const DefaultModel = "gpt-4o-mini"

// CreatePredictionInput describes one labeler result to store.
type CreatePredictionInput struct {
	Prompt     string
	PaperID    int64
	PaperTitle string
	Rebuttal   int
	Label      string
	Model      string
}

// PredictionRepository stores LLM predictions of the selected year.
type PredictionRepository interface {
	Create(ctx context.Context, in CreatePredictionInput) (*models.Prediction, error)
	FindByPaperAndPrompt(ctx context.Context, paperID int64, prompt string) (*models.Prediction, error)
	FindAllByPrompt(ctx context.Context, prompt string) ([]*models.Prediction, error)
	FindAllByPaper(ctx context.Context, paperID int64) ([]*models.Prediction, error)
	FindByPromptAndRebuttal(ctx context.Context, prompt string, rebuttal int) ([]*models.Prediction, error)
	FindBatchByPaperIDsPromptRebuttal(ctx context.Context, paperIDs []int64, prompt string, rebuttal int) ([]*models.Prediction, error)
	FindLatestPerPaper(ctx context.Context) ([]*models.Prediction, error)
	FindOutcomes(ctx context.Context, prompt string, rebuttal int) ([]models.Outcome, error)
	DistinctPrompts(ctx context.Context) ([]string, error)
	DeleteByPaperAndPrompt(ctx context.Context, paperID int64, prompt string) (int64, error)
	DeleteAllForYear(ctx context.Context, year string) (int64, error)
}

type predictionRepository struct {
	db         *sqlx.DB
	partitions *partition.Resolver
	logger     *zap.Logger
}

// NewPredictionRepository creates a prediction repository over the year partitions.
func NewPredictionRepository(db *sqlx.DB, partitions *partition.Resolver, logger *zap.Logger) PredictionRepository {
	return &predictionRepository{db: db, partitions: partitions, logger: logger}
}

// PromptHash is the indexed digest of a prompt key.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

func (r *predictionRepository) tables(ctx context.Context) (predictions, submissions partition.Partition, err error) {
	predictions, err = r.partitions.ResolveContext(ctx, partition.KindPrediction)
	if err != nil {
		return
	}
	submissions, err = r.partitions.Resolve(partition.KindSubmission, predictions.Year)
	return
}

// Create stores a prediction, replacing any earlier row for the same paper
// (matched by id or title), prompt and rebuttal flag. The ground-truth
// decision is copied from the submission row of the same year.
func (r *predictionRepository) Create(ctx context.Context, in CreatePredictionInput) (*models.Prediction, error) {
	if err := ValidateRebuttal(in.Rebuttal); err != nil {
		return nil, err
	}

	preds, subs, err := r.tables(ctx)
	if err != nil {
		return nil, err
	}

	model := in.Model
	if model == "" {
		model = DefaultModel
	}
	hash := PromptHash(in.Prompt)
	now := time.Now().UTC()

	p := &models.Prediction{
		Prompt:     in.Prompt,
		PaperID:    in.PaperID,
		PaperTitle: in.PaperTitle,
		Model:      model,
		Rebuttal:   in.Rebuttal,
		Prediction: models.NormalizeLabel(in.Label),
		CreatedAt:  now,
	}

	start := time.Now()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistence("begin prediction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	del := fmt.Sprintf(`DELETE FROM %s WHERE (paper_title = ? OR paper_id = ?) AND prompt_hash = ? AND rebuttal = ?`, preds.Table)
	res, err := tx.ExecContext(ctx, r.db.Rebind(del), in.PaperTitle, in.PaperID, hash, in.Rebuttal)
	if err != nil {
		metrics.RecordDBQuery("create", preds.Table, start, err)
		return nil, persistence("purge superseded predictions", err)
	}
	superseded, _ := res.RowsAffected()

	ins := fmt.Sprintf(`INSERT INTO %s (prompt, prompt_hash, paper_id, paper_title, model, rebuttal, prediction, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT decision FROM %s WHERE id = ?), ''), ?)
		ON CONFLICT (paper_id, prompt_hash, rebuttal) DO UPDATE SET
			prompt = excluded.prompt,
			paper_title = excluded.paper_title,
			model = excluded.model,
			prediction = excluded.prediction,
			decision = excluded.decision,
			created_at = excluded.created_at
		RETURNING id, decision`, preds.Table, subs.Table)
	err = tx.QueryRowxContext(ctx, r.db.Rebind(ins),
		p.Prompt, hash, p.PaperID, p.PaperTitle, p.Model, p.Rebuttal, string(p.Prediction), in.PaperID, now,
	).Scan(&p.ID, &p.Decision)
	if err != nil {
		metrics.RecordDBQuery("create", preds.Table, start, err)
		return nil, persistence("insert prediction", err)
	}

	err = tx.Commit()
	metrics.RecordDBQuery("create", preds.Table, start, err)
	if err != nil {
		return nil, persistence("commit prediction", err)
	}

	metrics.RecordPredictionStored(preds.Year, string(p.Prediction), p.Rebuttal, superseded)
	r.logger.Debug("Prediction stored",
		zap.String("table", preds.Table),
		zap.Int64("paper_id", p.PaperID),
		zap.Int("rebuttal", p.Rebuttal),
		zap.String("prediction", string(p.Prediction)),
		zap.Int64("superseded", superseded))

	return p, nil
}

func (r *predictionRepository) selectMany(ctx context.Context, op, query string, args ...interface{}) ([]*models.Prediction, error) {
	table, err := r.partitions.ResolveContext(ctx, partition.KindPrediction)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(query, table.Table)
	start := time.Now()
	predictions := []*models.Prediction{}
	err = r.db.SelectContext(ctx, &predictions, r.db.Rebind(q), args...)
	metrics.RecordDBQuery(op, table.Table, start, err)
	if err != nil {
		return nil, persistence(op, err)
	}

	for _, p := range predictions {
		p.Prediction = models.NormalizeLabel(string(p.Prediction))
	}
	return predictions, nil
}

// FindByPaperAndPrompt returns the most recent prediction for a paper under prompt.
func (r *predictionRepository) FindByPaperAndPrompt(ctx context.Context, paperID int64, prompt string) (*models.Prediction, error) {
	found, err := r.selectMany(ctx, "find_by_paper_and_prompt",
		"SELECT "+predictionCols+" FROM %s WHERE paper_id = ? AND prompt_hash = ? ORDER BY id DESC LIMIT 1",
		paperID, PromptHash(prompt))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrPredictionNotFound
	}
	return found[0], nil
}

func (r *predictionRepository) FindAllByPrompt(ctx context.Context, prompt string) ([]*models.Prediction, error) {
	return r.selectMany(ctx, "find_all_by_prompt",
		"SELECT "+predictionCols+" FROM %s WHERE prompt_hash = ? ORDER BY id",
		PromptHash(prompt))
}

func (r *predictionRepository) FindAllByPaper(ctx context.Context, paperID int64) ([]*models.Prediction, error) {
	return r.selectMany(ctx, "find_all_by_paper",
		"SELECT "+predictionCols+" FROM %s WHERE paper_id = ? ORDER BY id",
		paperID)
}

func (r *predictionRepository) FindByPromptAndRebuttal(ctx context.Context, prompt string, rebuttal int) ([]*models.Prediction, error) {
	return r.selectMany(ctx, "find_by_prompt_and_rebuttal",
		"SELECT "+predictionCols+" FROM %s WHERE prompt_hash = ? AND rebuttal = ? ORDER BY id",
		PromptHash(prompt), rebuttal)
}

// FindBatchByPaperIDsPromptRebuttal returns the stored predictions for the
// given papers. Papers without a prediction are simply absent.
func (r *predictionRepository) FindBatchByPaperIDsPromptRebuttal(ctx context.Context, paperIDs []int64, prompt string, rebuttal int) ([]*models.Prediction, error) {
	if len(paperIDs) == 0 {
		return []*models.Prediction{}, nil
	}

	table, err := r.partitions.ResolveContext(ctx, partition.KindPrediction)
	if err != nil {
		return nil, err
	}

	query, args, err := sqlx.In(
		fmt.Sprintf("SELECT %s FROM %s WHERE paper_id IN (?) AND prompt_hash = ? AND rebuttal = ? ORDER BY id", predictionCols, table.Table),
		paperIDs, PromptHash(prompt), rebuttal)
	if err != nil {
		return nil, persistence("expand batch query", err)
	}

	start := time.Now()
	predictions := []*models.Prediction{}
	err = r.db.SelectContext(ctx, &predictions, r.db.Rebind(query), args...)
	metrics.RecordDBQuery("find_batch", table.Table, start, err)
	if err != nil {
		return nil, persistence("find batch", err)
	}

	for _, p := range predictions {
		p.Prediction = models.NormalizeLabel(string(p.Prediction))
	}
	return predictions, nil
}

// FindLatestPerPaper returns, for every paper, its prediction with the largest id.
func (r *predictionRepository) FindLatestPerPaper(ctx context.Context) ([]*models.Prediction, error) {
	return r.selectMany(ctx, "find_latest_per_paper",
		"SELECT "+predictionCols+" FROM %[1]s WHERE id IN (SELECT MAX(id) FROM %[1]s GROUP BY paper_id) ORDER BY paper_id")
}

// FindOutcomes pairs each prediction under (prompt, rebuttal) with the
// submission's current decision, falling back to the copy on the prediction.
func (r *predictionRepository) FindOutcomes(ctx context.Context, prompt string, rebuttal int) ([]models.Outcome, error) {
	preds, subs, err := r.tables(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT p.paper_id, p.paper_title, p.prediction, COALESCE(s.decision, p.decision) AS decision
		FROM %s p LEFT JOIN %s s ON s.id = p.paper_id
		WHERE p.prompt_hash = ? AND p.rebuttal = ?
		ORDER BY p.id`, preds.Table, subs.Table)

	start := time.Now()
	outcomes := []models.Outcome{}
	err = r.db.SelectContext(ctx, &outcomes, r.db.Rebind(query), PromptHash(prompt), rebuttal)
	metrics.RecordDBQuery("find_outcomes", preds.Table, start, err)
	if err != nil {
		return nil, persistence("find outcomes", err)
	}

	for i := range outcomes {
		outcomes[i].Predicted = models.NormalizeLabel(string(outcomes[i].Predicted))
	}
	return outcomes, nil
}

// DistinctPrompts lists every prompt key with at least one stored prediction.
func (r *predictionRepository) DistinctPrompts(ctx context.Context) ([]string, error) {
	table, err := r.partitions.ResolveContext(ctx, partition.KindPrediction)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	prompts := []string{}
	err = r.db.SelectContext(ctx, &prompts, fmt.Sprintf("SELECT DISTINCT prompt FROM %s ORDER BY prompt", table.Table))
	metrics.RecordDBQuery("distinct_prompts", table.Table, start, err)
	if err != nil {
		return nil, persistence("distinct prompts", err)
	}
	return prompts, nil
}

// DeleteByPaperAndPrompt removes every prediction of a paper under prompt and
// reports how many rows went; deleting nothing is not an error.
func (r *predictionRepository) DeleteByPaperAndPrompt(ctx context.Context, paperID int64, prompt string) (int64, error) {
	table, err := r.partitions.ResolveContext(ctx, partition.KindPrediction)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE paper_id = ? AND prompt_hash = ?", table.Table)),
		paperID, PromptHash(prompt))
	metrics.RecordDBQuery("delete", table.Table, start, err)
	if err != nil {
		return 0, persistence("delete prediction", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistence("delete prediction", err)
	}
	return n, nil
}

// DeleteAllForYear purges the prediction partition of year.
func (r *predictionRepository) DeleteAllForYear(ctx context.Context, year string) (int64, error) {
	table, err := r.partitions.Resolve(partition.KindPrediction, year)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	res, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table.Table))
	metrics.RecordDBQuery("delete_all", table.Table, start, err)
	if err != nil {
		return 0, persistence("purge predictions", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistence("purge predictions", err)
	}

	r.logger.Info("Predictions purged", zap.String("table", table.Table), zap.Int64("count", n))
	return n, nil
}
