package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"iclr-explorer/internal/metrics"
	"iclr-explorer/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	statsTable       = "prediction_stats"
	statEntriesTable = "prediction_stat_entries"
)

// StatsUpdate changes a stored stats record. Nil fields keep their value.
type StatsUpdate struct {
	PromptType  *int
	Predictions []models.StatsEntry
}

// StatsRepository keeps the cross-year prediction leaderboard. It is not
// partitioned by year: each entry carries its own year and conference.
type StatsRepository interface {
	FindByPrompt(ctx context.Context, prompt string) ([]*models.PredictionStats, error)
	FindAll(ctx context.Context) ([]*models.PredictionStats, error)
	FindByPromptType(ctx context.Context, promptType int) ([]*models.PredictionStats, error)
	FindByYear(ctx context.Context, year int) ([]*models.PredictionStats, error)
	FindByConference(ctx context.Context, conference string) ([]*models.PredictionStats, error)
	Create(ctx context.Context, stats *models.PredictionStats) error
	Upsert(ctx context.Context, prompt string, update StatsUpdate) (*models.PredictionStats, error)
	ReplaceAll(ctx context.Context, all []*models.PredictionStats) (int, error)
	DeleteByPrompt(ctx context.Context, prompt string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	Summary(ctx context.Context) ([]*models.StatsSummary, error)
}

type statsRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStatsRepository creates a prediction stats repository.
func NewStatsRepository(db *sqlx.DB, logger *zap.Logger) StatsRepository {
	return &statsRepository{db: db, logger: logger}
}

type statsEntryRow struct {
	StatsID int64 `db:"stats_id"`
	models.StatsEntry
}

// find loads the records matching where together with all their entries.
func (r *statsRepository) find(ctx context.Context, op, where string, args ...interface{}) ([]*models.PredictionStats, error) {
	start := time.Now()
	all := []*models.PredictionStats{}
	query := fmt.Sprintf("SELECT id, prompt, prompt_type FROM %s %s ORDER BY id", statsTable, where)
	err := r.db.SelectContext(ctx, &all, r.db.Rebind(query), args...)
	metrics.RecordDBQuery(op, statsTable, start, err)
	if err != nil {
		return nil, persistence(op, err)
	}
	if len(all) == 0 {
		return all, nil
	}

	ids := make([]int64, len(all))
	byID := make(map[int64]*models.PredictionStats, len(all))
	for i, s := range all {
		ids[i] = s.ID
		s.Predictions = []models.StatsEntry{}
		byID[s.ID] = s
	}

	query, args, err = sqlx.In(fmt.Sprintf(`SELECT stats_id, year, conference, number_of_predictions, rebuttal_in_review, tp, fp, fn, tn
		FROM %s WHERE stats_id IN (?) ORDER BY id`, statEntriesTable), ids)
	if err != nil {
		return nil, persistence("expand stats entries query", err)
	}

	start = time.Now()
	var rows []statsEntryRow
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...)
	metrics.RecordDBQuery(op, statEntriesTable, start, err)
	if err != nil {
		return nil, persistence(op+" entries", err)
	}

	for _, row := range rows {
		s := byID[row.StatsID]
		s.Predictions = append(s.Predictions, row.StatsEntry)
	}
	return all, nil
}

func (r *statsRepository) FindByPrompt(ctx context.Context, prompt string) ([]*models.PredictionStats, error) {
	return r.find(ctx, "find_stats_by_prompt", "WHERE prompt = ?", prompt)
}

func (r *statsRepository) FindAll(ctx context.Context) ([]*models.PredictionStats, error) {
	return r.find(ctx, "find_all_stats", "")
}

func (r *statsRepository) FindByPromptType(ctx context.Context, promptType int) ([]*models.PredictionStats, error) {
	return r.find(ctx, "find_stats_by_prompt_type", "WHERE prompt_type = ?", promptType)
}

// FindByYear returns every record with at least one entry for year. Matching
// records come back with all of their entries.
func (r *statsRepository) FindByYear(ctx context.Context, year int) ([]*models.PredictionStats, error) {
	return r.find(ctx, "find_stats_by_year",
		fmt.Sprintf("WHERE id IN (SELECT stats_id FROM %s WHERE year = ?)", statEntriesTable), year)
}

func (r *statsRepository) FindByConference(ctx context.Context, conference string) ([]*models.PredictionStats, error) {
	return r.find(ctx, "find_stats_by_conference",
		fmt.Sprintf("WHERE id IN (SELECT stats_id FROM %s WHERE conference = ?)", statEntriesTable), conference)
}

// Create stores a new record. A record for the same prompt yields ErrStatsExists.
func (r *statsRepository) Create(ctx context.Context, stats *models.PredictionStats) error {
	return r.inTx(ctx, "create_stats", func(tx *sqlx.Tx) error {
		return r.insert(ctx, tx, stats)
	})
}

// Upsert updates the record of prompt, creating it when missing. Given
// entries replace the stored ones.
func (r *statsRepository) Upsert(ctx context.Context, prompt string, update StatsUpdate) (*models.PredictionStats, error) {
	err := r.inTx(ctx, "upsert_stats", func(tx *sqlx.Tx) error {
		var id int64
		err := tx.GetContext(ctx, &id, r.db.Rebind(fmt.Sprintf("SELECT id FROM %s WHERE prompt = ?", statsTable)), prompt)
		if errors.Is(err, sql.ErrNoRows) {
			stats := &models.PredictionStats{Prompt: prompt, PromptType: models.DefaultPromptType, Predictions: update.Predictions}
			if update.PromptType != nil {
				stats.PromptType = *update.PromptType
			}
			return r.insert(ctx, tx, stats)
		}
		if err != nil {
			return persistence("find stats", err)
		}

		if update.PromptType != nil {
			if _, err := tx.ExecContext(ctx,
				r.db.Rebind(fmt.Sprintf("UPDATE %s SET prompt_type = ? WHERE id = ?", statsTable)),
				*update.PromptType, id); err != nil {
				return persistence("update prompt type", err)
			}
		}

		if update.Predictions != nil {
			if _, err := tx.ExecContext(ctx,
				r.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE stats_id = ?", statEntriesTable)), id); err != nil {
				return persistence("clear stats entries", err)
			}
			return r.insertEntries(ctx, tx, id, update.Predictions)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	found, err := r.FindByPrompt(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, persistence("reload stats", sql.ErrNoRows)
	}
	return found[0], nil
}

// ReplaceAll clears the leaderboard and stores all in one transaction.
func (r *statsRepository) ReplaceAll(ctx context.Context, all []*models.PredictionStats) (int, error) {
	err := r.inTx(ctx, "replace_stats", func(tx *sqlx.Tx) error {
		if err := r.clear(ctx, tx); err != nil {
			return err
		}
		for _, s := range all {
			if err := r.insert(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info("Prediction stats replaced", zap.Int("count", len(all)))
	return len(all), nil
}

// DeleteByPrompt removes the record of prompt and reports how many went.
func (r *statsRepository) DeleteByPrompt(ctx context.Context, prompt string) (int64, error) {
	var n int64
	err := r.inTx(ctx, "delete_stats", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(fmt.Sprintf(
			"DELETE FROM %s WHERE stats_id IN (SELECT id FROM %s WHERE prompt = ?)", statEntriesTable, statsTable)), prompt); err != nil {
			return persistence("delete stats entries", err)
		}

		res, err := tx.ExecContext(ctx, r.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE prompt = ?", statsTable)), prompt)
		if err != nil {
			return persistence("delete stats", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return persistence("delete stats", err)
		}
		return nil
	})
	return n, err
}

// DeleteAll empties the leaderboard.
func (r *statsRepository) DeleteAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.inTx(ctx, "delete_all_stats", func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", statsTable)); err != nil {
			return persistence("count stats", err)
		}
		return r.clear(ctx, tx)
	})
	return n, err
}

// Summary groups entries by prompt type and rebuttal setting. Ratios with a
// zero denominator are left out of their average.
func (r *statsRepository) Summary(ctx context.Context) ([]*models.StatsSummary, error) {
	query := fmt.Sprintf(`SELECT s.prompt_type, e.rebuttal_in_review,
			COALESCE(SUM(e.number_of_predictions), 0) AS total_papers,
			AVG(CASE WHEN e.tp + e.tn + e.fp + e.fn > 0 THEN (e.tp + e.tn) * 1.0 / (e.tp + e.tn + e.fp + e.fn) END) AS avg_accuracy,
			AVG(CASE WHEN e.tp + e.fp > 0 THEN e.tp * 1.0 / (e.tp + e.fp) END) AS avg_precision,
			AVG(CASE WHEN e.tp + e.fn > 0 THEN e.tp * 1.0 / (e.tp + e.fn) END) AS avg_recall
		FROM %s s JOIN %s e ON e.stats_id = s.id
		GROUP BY s.prompt_type, e.rebuttal_in_review
		ORDER BY s.prompt_type, e.rebuttal_in_review`, statsTable, statEntriesTable)

	start := time.Now()
	summary := []*models.StatsSummary{}
	err := r.db.SelectContext(ctx, &summary, query)
	metrics.RecordDBQuery("stats_summary", statsTable, start, err)
	if err != nil {
		return nil, persistence("stats summary", err)
	}
	return summary, nil
}

func (r *statsRepository) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	start := time.Now()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistence("begin "+op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		metrics.RecordDBQuery(op, statsTable, start, err)
		return err
	}

	err = tx.Commit()
	metrics.RecordDBQuery(op, statsTable, start, err)
	if err != nil {
		return persistence("commit "+op, err)
	}
	return nil
}

func (r *statsRepository) insert(ctx context.Context, tx *sqlx.Tx, stats *models.PredictionStats) error {
	stats.Prompt = strings.TrimSpace(stats.Prompt)

	query := r.db.Rebind(fmt.Sprintf(`INSERT INTO %s (prompt, prompt_type) VALUES (?, ?)
		ON CONFLICT (prompt) DO NOTHING
		RETURNING id`, statsTable))
	err := tx.GetContext(ctx, &stats.ID, query, stats.Prompt, stats.PromptType)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrStatsExists, stats.Prompt)
	}
	if err != nil {
		return persistence("insert stats", err)
	}

	if stats.Predictions == nil {
		stats.Predictions = []models.StatsEntry{}
	}
	return r.insertEntries(ctx, tx, stats.ID, stats.Predictions)
}

func (r *statsRepository) insertEntries(ctx context.Context, tx *sqlx.Tx, statsID int64, entries []models.StatsEntry) error {
	query := r.db.Rebind(fmt.Sprintf(`INSERT INTO %s
		(stats_id, year, conference, number_of_predictions, rebuttal_in_review, tp, fp, fn, tn)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, statEntriesTable))

	for i := range entries {
		e := &entries[i]
		if e.Year == 0 {
			e.Year = models.DefaultStatsYear
		}
		if e.Conference == "" {
			e.Conference = models.DefaultStatsConference
		}
		if _, err := tx.ExecContext(ctx, query,
			statsID, e.Year, e.Conference, e.NumberOfPredictions, e.RebuttalInReview, e.TP, e.FP, e.FN, e.TN); err != nil {
			return persistence("insert stats entry", err)
		}
	}
	return nil
}

func (r *statsRepository) clear(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", statEntriesTable)); err != nil {
		return persistence("clear stats entries", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", statsTable)); err != nil {
		return persistence("clear stats", err)
	}
	return nil
}
