package partition

import (
	"context"
	"errors"
	"fmt"

	"iclr-explorer/internal/year"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrUnknownPartition means no table is registered for the requested kind and year.
var ErrUnknownPartition = errors.New("unknown partition")

// Kind names an entity stored per year.
type Kind string

const (
	KindSubmission Kind = "submissions"
	KindPrediction Kind = "predictions"
)

var kinds = []Kind{KindSubmission, KindPrediction}

// Partition is the concrete table holding one kind of entity for one year.
type Partition struct {
	Kind  Kind
	Year  string
	Table string
}

// Resolver maps (kind, year) to a table. The set of partitions is fixed at construction.
type Resolver struct {
	years      *year.Registry
	partitions map[Kind]map[string]Partition
	logger     *zap.Logger
}

// NewResolver registers one partition per kind for every available year.
func NewResolver(years *year.Registry, logger *zap.Logger) *Resolver {
	r := &Resolver{
		years:      years,
		partitions: make(map[Kind]map[string]Partition, len(kinds)),
		logger:     logger,
	}

	for _, k := range kinds {
		r.partitions[k] = make(map[string]Partition)
		for _, y := range years.Available() {
			r.partitions[k][y] = Partition{Kind: k, Year: y, Table: TableName(k, y)}
		}
	}

	return r
}

// TableName returns the naming convention <entity>_<year>.
func TableName(kind Kind, y string) string {
	return fmt.Sprintf("%s_%s", kind, y)
}

// Resolve returns the partition for kind in year. It never substitutes another year.
func (r *Resolver) Resolve(kind Kind, y string) (Partition, error) {
	byYear, ok := r.partitions[kind]
	if !ok {
		return Partition{}, fmt.Errorf("%w: kind %q", ErrUnknownPartition, kind)
	}

	p, ok := byYear[y]
	if !ok {
		return Partition{}, fmt.Errorf("%w: %s for year %q", ErrUnknownPartition, kind, y)
	}

	return p, nil
}

// ResolveContext resolves kind for the year pinned on ctx, or the global year.
func (r *Resolver) ResolveContext(ctx context.Context, kind Kind) (Partition, error) {
	return r.Resolve(kind, r.years.FromContext(ctx))
}

// Partitions lists every registered partition.
func (r *Resolver) Partitions() []Partition {
	var out []Partition
	for _, k := range kinds {
		for _, y := range r.years.Available() {
			out = append(out, r.partitions[k][y])
		}
	}
	return out
}

// Verify checks that every registered table exists.
func (r *Resolver) Verify(ctx context.Context, db *sqlx.DB) error {
	for _, p := range r.Partitions() {
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1 = 0", p.Table)
		if err := db.GetContext(ctx, &n, query); err != nil {
			return fmt.Errorf("%w: table %s is not available: %v", ErrUnknownPartition, p.Table, err)
		}
	}

	r.logger.Info("Partitions verified", zap.Int("count", len(r.Partitions())))
	return nil
}
