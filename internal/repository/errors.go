package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"iclr-explorer/internal/models"
)

var (
	// ErrSubmissionNotFound means no submission matched the lookup.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrPredictionNotFound means no prediction matched the lookup.
	ErrPredictionNotFound = errors.New("prediction not found")
	// ErrInvalidIdentifier means a record id could not be parsed.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrInvalidRebuttal means a rebuttal flag outside 0, 1 and -1.
	ErrInvalidRebuttal = errors.New("invalid rebuttal flag")
	// ErrStatsExists means prediction stats for the prompt are already stored.
	ErrStatsExists = errors.New("prediction stats already exist")
	// ErrPersistence wraps storage failures.
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError is a storage failure of one operation. Its Error text
// includes the driver message; Public omits it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Public is the message safe to hand to API clients.
func (e *PersistenceError) Public() string {
	return fmt.Sprintf("%s: %s", ErrPersistence, e.Op)
}

// ParseID parses a record identifier taken from a path or request body.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	return id, nil
}

// ValidateRebuttal accepts only the stored rebuttal flag values.
func ValidateRebuttal(rebuttal int) error {
	switch rebuttal {
	case models.RebuttalExcluded, models.RebuttalIncluded, models.RebuttalUnknown:
		return nil
	}
	return fmt.Errorf("%w: %d", ErrInvalidRebuttal, rebuttal)
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a lower-cased LIKE pattern matching term literally.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
