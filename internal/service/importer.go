package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"iclr-explorer/internal/models"
	"iclr-explorer/internal/repository"
	"iclr-explorer/internal/year"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const importBatchSize = 200

// ImportResult summarizes one import run.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// importRecord is one scraped submission. Exported document ids are ignored
// and the year may be a string or a number.
type importRecord struct {
	SID         string             `json:"s_id"`
	Authors     []string           `json:"authors"`
	Title       string             `json:"title"`
	Abstract    string             `json:"abstract"`
	Year        interface{}        `json:"year"`
	URL         string             `json:"url"`
	Decision    string             `json:"decision"`
	MetaReviews models.MetaReviews `json:"metareviews"`
}

func (r importRecord) submission(defaultYear string) (*models.Submission, bool) {
	sid := r.SID
	if sid == "" {
		sid = r.URL
	}
	if sid == "" {
		return nil, false
	}

	y := defaultYear
	if r.Year != nil {
		y = fmt.Sprint(r.Year)
	}

	return &models.Submission{
		SID:         sid,
		Authors:     r.Authors,
		Title:       r.Title,
		Abstract:    r.Abstract,
		Year:        y,
		URL:         r.URL,
		Decision:    r.Decision,
		MetaReviews: r.MetaReviews,
	}, true
}

// Importer loads scraped submissions into a year partition.
type Importer struct {
	submissions repository.SubmissionRepository
	years       *year.Registry
	logger      *zap.Logger
}

// NewImporter creates a new importer service
func NewImporter(submissions repository.SubmissionRepository, years *year.Registry, logger *zap.Logger) *Importer {
	return &Importer{submissions: submissions, years: years, logger: logger}
}

// Import reads a JSON array or JSON Lines stream and upserts the submissions
// into the partition of targetYear in batches. Records without any source id
// or URL are skipped.
func (i *Importer) Import(ctx context.Context, r io.Reader, targetYear string) (*ImportResult, error) {
	ctx, err := i.years.WithYear(ctx, targetYear)
	if err != nil {
		return nil, err
	}

	records, err := decodeStream[importRecord](r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	batch := make([]*models.Submission, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := i.submissions.CreateMany(ctx, batch)
		if err != nil {
			return err
		}
		res.Imported += n
		i.logger.Info("Imported batch",
			zap.String("year", targetYear),
			zap.Int("batch", n),
			zap.Int("total", res.Imported))
		batch = batch[:0]
		return nil
	}

	for _, rec := range records {
		sub, ok := rec.submission(targetYear)
		if !ok {
			res.Skipped++
			continue
		}
		batch = append(batch, sub)
		if len(batch) == importBatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	i.logger.Info("Import finished",
		zap.String("year", targetYear),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// decodeStream accepts either a single JSON array or one object per line.
func decodeStream[T any](r io.Reader) ([]T, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read import data: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []T
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to decode JSON array: %w", err)
		}
		return records, nil
	}

	var records []T
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan import data: %w", err)
	}
	return records, nil
}
