package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"iclr-explorer/internal/metrics"
	"iclr-explorer/internal/models"
	"iclr-explorer/internal/partition"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	submissionCols  = "id, s_id, authors, title, abstract, year, url, decision, metareviews"
)

// SubmissionRepository reads and maintains the submissions of the selected year.
type SubmissionRepository interface {
	FindAll(ctx context.Context) ([]*models.Submission, error)
	FindAllPartial(ctx context.Context) ([]*models.Submission, error)
	FindPaginated(ctx context.Context, limit, offset int, search string) (*models.Page, error)
	FindByTitle(ctx context.Context, title string) ([]*models.Submission, error)
	FindByAuthor(ctx context.Context, author string) ([]*models.Submission, error)
	FindByDecision(ctx context.Context, decision string) ([]*models.Submission, error)
	FindByAbstract(ctx context.Context, abstract string) ([]*models.Submission, error)
	FindByYearField(ctx context.Context, year string) ([]*models.Submission, error)
	FindBibliography(ctx context.Context) ([]*models.BibEntry, error)
	FindByID(ctx context.Context, id int64) (*models.Submission, error)
	FindByURL(ctx context.Context, url string) (*models.Submission, error)
	SampleRandom(ctx context.Context, n int) ([]*models.Submission, error)
	DeleteByID(ctx context.Context, id int64) (int64, error)
	CreateMany(ctx context.Context, submissions []*models.Submission) (int, error)
	UpdateDecision(ctx context.Context, id int64, decision string) error
}

type submissionRepository struct {
	db         *sqlx.DB
	partitions *partition.Resolver
	logger     *zap.Logger
}

// NewSubmissionRepository creates a submission repository over the year partitions.
func NewSubmissionRepository(db *sqlx.DB, partitions *partition.Resolver, logger *zap.Logger) SubmissionRepository {
	return &submissionRepository{db: db, partitions: partitions, logger: logger}
}

func (r *submissionRepository) table(ctx context.Context) (string, error) {
	p, err := r.partitions.ResolveContext(ctx, partition.KindSubmission)
	if err != nil {
		return "", err
	}
	return p.Table, nil
}

func (r *submissionRepository) selectMany(ctx context.Context, op, where string, args ...interface{}) ([]*models.Submission, error) {
	table, err := r.table(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s %s", submissionCols, table, where)
	start := time.Now()
	submissions := []*models.Submission{}
	err = r.db.SelectContext(ctx, &submissions, r.db.Rebind(query), args...)
	metrics.RecordDBQuery(op, table, start, err)
	if err != nil {
		return nil, persistence(op, err)
	}
	return submissions, nil
}

func (r *submissionRepository) selectOne(ctx context.Context, op, where string, args ...interface{}) (*models.Submission, error) {
	table, err := r.table(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s %s", submissionCols, table, where)
	start := time.Now()
	var s models.Submission
	err = r.db.GetContext(ctx, &s, r.db.Rebind(query), args...)
	metrics.RecordDBQuery(op, table, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, persistence(op, err)
	}
	return &s, nil
}

func (r *submissionRepository) FindAll(ctx context.Context) ([]*models.Submission, error) {
	return r.selectMany(ctx, "find_all", "ORDER BY id")
}

// FindAllPartial returns every submission with reviews reduced to rating and confidence.
func (r *submissionRepository) FindAllPartial(ctx context.Context) ([]*models.Submission, error) {
	submissions, err := r.selectMany(ctx, "find_all_partial", "ORDER BY id")
	if err != nil {
		return nil, err
	}
	for _, s := range submissions {
		s.MetaReviews = s.PartialReviews()
	}
	return submissions, nil
}

// FindPaginated returns one page ordered by id. search filters title or
// authors case-insensitively; the total count uses the same filter.
func (r *submissionRepository) FindPaginated(ctx context.Context, limit, offset int, search string) (*models.Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	table, err := r.table(ctx)
	if err != nil {
		return nil, err
	}

	where := ""
	var args []interface{}
	if search != "" {
		pattern := containsPattern(search)
		where = `WHERE LOWER(title) LIKE ? ESCAPE '\' OR ` + r.authorMatch()
		args = append(args, pattern, pattern)
	}

	start := time.Now()
	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", table, where)
	err = r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), args...)
	metrics.RecordDBQuery("count", table, start, err)
	if err != nil {
		return nil, persistence("count submissions", err)
	}

	items, err := r.selectMany(ctx, "find_paginated", where+" ORDER BY id LIMIT ? OFFSET ?", append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}

	return &models.Page{Items: items, TotalCount: total}, nil
}

// authorMatch tests each element of the authors JSON array on its own, so
// array punctuation and escaping never take part in the match.
func (r *submissionRepository) authorMatch() string {
	if r.db.DriverName() == DBTypePostgres {
		return `EXISTS (SELECT 1 FROM jsonb_array_elements_text(authors::jsonb) AS a(name) WHERE LOWER(a.name) LIKE ? ESCAPE '\')`
	}
	return `EXISTS (SELECT 1 FROM json_each(authors) WHERE LOWER(json_each.value) LIKE ? ESCAPE '\')`
}

func (r *submissionRepository) findContaining(ctx context.Context, column, term string) ([]*models.Submission, error) {
	where := fmt.Sprintf(`WHERE LOWER(%s) LIKE ? ESCAPE '\' ORDER BY id`, column)
	return r.selectMany(ctx, "find_by_"+column, where, containsPattern(term))
}

func (r *submissionRepository) FindByTitle(ctx context.Context, title string) ([]*models.Submission, error) {
	return r.findContaining(ctx, "title", title)
}

func (r *submissionRepository) FindByAuthor(ctx context.Context, author string) ([]*models.Submission, error) {
	return r.selectMany(ctx, "find_by_authors", "WHERE "+r.authorMatch()+" ORDER BY id", containsPattern(author))
}

func (r *submissionRepository) FindByDecision(ctx context.Context, decision string) ([]*models.Submission, error) {
	return r.findContaining(ctx, "decision", decision)
}

func (r *submissionRepository) FindByAbstract(ctx context.Context, abstract string) ([]*models.Submission, error) {
	return r.findContaining(ctx, "abstract", abstract)
}

// FindByYearField matches the stored year text of each submission. It filters
// inside the selected partition and does not switch partitions.
func (r *submissionRepository) FindByYearField(ctx context.Context, year string) ([]*models.Submission, error) {
	return r.findContaining(ctx, "year", year)
}

// FindBibliography returns the citation fields of every submission.
func (r *submissionRepository) FindBibliography(ctx context.Context) ([]*models.BibEntry, error) {
	table, err := r.table(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	entries := []*models.BibEntry{}
	err = r.db.SelectContext(ctx, &entries,
		fmt.Sprintf("SELECT id, url, title, abstract, authors, year, decision FROM %s ORDER BY id", table))
	metrics.RecordDBQuery("find_bibliography", table, start, err)
	if err != nil {
		return nil, persistence("find bibliography", err)
	}
	return entries, nil
}

func (r *submissionRepository) FindByID(ctx context.Context, id int64) (*models.Submission, error) {
	return r.selectOne(ctx, "find_by_id", "WHERE id = ?", id)
}

func (r *submissionRepository) FindByURL(ctx context.Context, url string) (*models.Submission, error) {
	return r.selectOne(ctx, "find_by_url", "WHERE url = ? ORDER BY id LIMIT 1", url)
}

// SampleRandom returns up to n distinct submissions in random order.
func (r *submissionRepository) SampleRandom(ctx context.Context, n int) ([]*models.Submission, error) {
	if n <= 0 {
		n = 1
	}
	return r.selectMany(ctx, "sample_random", "ORDER BY RANDOM() LIMIT ?", n)
}

// DeleteByID removes one submission and reports how many rows were deleted.
func (r *submissionRepository) DeleteByID(ctx context.Context, id int64) (int64, error) {
	table, err := r.table(ctx)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)), id)
	metrics.RecordDBQuery("delete", table, start, err)
	if err != nil {
		return 0, persistence("delete submission", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistence("delete submission", err)
	}
	return n, nil
}

// CreateMany upserts submissions keyed by their source id in one transaction.
// IDs of the stored rows are written back to the input.
func (r *submissionRepository) CreateMany(ctx context.Context, submissions []*models.Submission) (int, error) {
	if len(submissions) == 0 {
		return 0, nil
	}

	table, err := r.table(ctx)
	if err != nil {
		return 0, err
	}

	query := r.db.Rebind(fmt.Sprintf(`INSERT INTO %s (s_id, authors, title, abstract, year, url, decision, metareviews)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (s_id) DO UPDATE SET
			authors = excluded.authors,
			title = excluded.title,
			abstract = excluded.abstract,
			year = excluded.year,
			url = excluded.url,
			decision = excluded.decision,
			metareviews = excluded.metareviews
		RETURNING id`, table))

	start := time.Now()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, persistence("begin import", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, s := range submissions {
		if err := tx.GetContext(ctx, &s.ID, query,
			s.SID, s.Authors, s.Title, s.Abstract, s.Year, s.URL, s.Decision, s.MetaReviews); err != nil {
			metrics.RecordDBQuery("create_many", table, start, err)
			return 0, persistence(fmt.Sprintf("upsert submission %s", s.SID), err)
		}
	}

	err = tx.Commit()
	metrics.RecordDBQuery("create_many", table, start, err)
	if err != nil {
		return 0, persistence("commit import", err)
	}

	r.logger.Info("Submissions imported", zap.String("table", table), zap.Int("count", len(submissions)))
	return len(submissions), nil
}

// UpdateDecision corrects the ground-truth decision of one submission.
func (r *submissionRepository) UpdateDecision(ctx context.Context, id int64, decision string) error {
	table, err := r.table(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(fmt.Sprintf("UPDATE %s SET decision = ? WHERE id = ?", table)), decision, id)
	metrics.RecordDBQuery("update_decision", table, start, err)
	if err != nil {
		return persistence("update decision", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return persistence("update decision", err)
	}
	if n == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}
