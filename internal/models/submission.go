package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
)

// Submission is one conference paper with its reviews.
type Submission struct {
	ID          int64       `json:"_id" db:"id"`
	SID         string      `json:"s_id" db:"s_id"`
	Authors     StringList  `json:"authors" db:"authors"`
	Title       string      `json:"title" db:"title"`
	Abstract    string      `json:"abstract" db:"abstract"`
	Year        string      `json:"year" db:"year"`
	URL         string      `json:"url" db:"url"`
	Decision    string      `json:"decision" db:"decision"`
	MetaReviews MetaReviews `json:"metareviews" db:"metareviews"`
}

// BibEntry is the citation view of a submission.
type BibEntry struct {
	ID       int64      `json:"_id" db:"id"`
	URL      string     `json:"url" db:"url"`
	Title    string     `json:"title" db:"title"`
	Abstract string     `json:"abstract" db:"abstract"`
	Authors  StringList `json:"authors" db:"authors"`
	Year     string     `json:"year" db:"year"`
	Decision string     `json:"decision" db:"decision"`
}

// MetaReview is a single review with its rebuttal thread.
type MetaReview struct {
	ID       string          `json:"id,omitempty"`
	ReplyID  string          `json:"reply_id,omitempty"`
	Values   ReviewValues    `json:"values,omitempty"`
	Rebuttal []RebuttalEntry `json:"rebuttal,omitempty"`
}

// RebuttalEntry is a reply in a review thread. Value is set when the entry is
// the reviewer's own reply; otherwise Comment carries the text.
type RebuttalEntry struct {
	RID      string         `json:"r_id,omitempty"`
	ReplyID  string         `json:"reply_id,omitempty"`
	Value    *string        `json:"value,omitempty"`
	Comment  string         `json:"comment,omitempty"`
	Comments []ReplyComment `json:"comments,omitempty"`
}

// ReplyComment is a nested reply under a rebuttal entry.
type ReplyComment struct {
	CID     string `json:"c_id,omitempty"`
	ReplyID string `json:"reply_id,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Review value fields.
const (
	FieldSummary      = "summary"
	FieldSoundness    = "soundness"
	FieldPresentation = "presentation"
	FieldContribution = "contribution"
	FieldStrengths    = "strengths"
	FieldWeaknesses   = "weaknesses"
	FieldQuestions    = "questions"
	FieldLimitations  = "limitations"
	FieldRating       = "rating"
	FieldConfidence   = "confidence"
)

// ReviewValues holds the structured fields of a review. Imported data mixes
// strings and numbers, so every scalar is kept as text.
type ReviewValues map[string]string

// UnmarshalJSON accepts strings, numbers and booleans; null drops the field.
func (v *ReviewValues) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(ReviewValues, len(raw))
	for k, val := range raw {
		switch t := val.(type) {
		case nil:
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			b, err := json.Marshal(t)
			if err != nil {
				return err
			}
			out[k] = string(b)
		}
	}

	*v = out
	return nil
}

// Numeric returns the leading integer of a field ("6: marginally above" -> 6).
// Absent or non-numeric fields report false, never zero.
func (v ReviewValues) Numeric(field string) (int, bool) {
	raw := strings.TrimSpace(v[field])
	end := 0
	for end < len(raw) && unicode.IsDigit(rune(raw[end])) {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// StringList is a []string stored as a JSON array column.
type StringList []string

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(src interface{}) error {
	b, err := columnBytes(src)
	if err != nil || b == nil {
		*s = nil
		return err
	}
	return json.Unmarshal(b, (*[]string)(s))
}

// MetaReviews is a review list stored as a JSON document column.
type MetaReviews []MetaReview

// Value implements driver.Valuer. A nil list is stored as NULL so "no review
// list" stays distinguishable from an empty one.
func (m MetaReviews) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal([]MetaReview(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *MetaReviews) Scan(src interface{}) error {
	b, err := columnBytes(src)
	if err != nil || b == nil {
		*m = nil
		return err
	}
	return json.Unmarshal(b, (*[]MetaReview)(m))
}

func columnBytes(src interface{}) ([]byte, error) {
	switch t := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", src)
	}
}

// PartialReviews keeps only the numeric rating and confidence of each review
// and drops every rebuttal. Used for distribution charts.
func (s Submission) PartialReviews() MetaReviews {
	if s.MetaReviews == nil {
		return nil
	}

	out := make(MetaReviews, 0, len(s.MetaReviews))
	for _, mr := range s.MetaReviews {
		values := ReviewValues{}
		for _, f := range []string{FieldRating, FieldConfidence} {
			if val, ok := mr.Values[f]; ok {
				values[f] = val
			}
		}
		out = append(out, MetaReview{ID: mr.ID, ReplyID: mr.ReplyID, Values: values})
	}
	return out
}

// Page is one page of a listing with the size of the whole filtered set.
type Page struct {
	Items      []*Submission
	TotalCount int
}
