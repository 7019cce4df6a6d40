package models

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Label is a normalized prediction outcome.
type Label string

const (
	Accept     Label = "Accept"
	Reject     Label = "Reject"
	Borderline Label = "Borderline"
)

// Scored reports whether the label takes part in confusion-matrix counting.
func (l Label) Scored() bool {
	return l == Accept || l == Reject
}

// Rebuttal flag values stored on predictions.
const (
	RebuttalExcluded = 0
	RebuttalIncluded = 1
	RebuttalUnknown  = -1
)

// Prediction is one stored LLM label for a paper under a prompt.
type Prediction struct {
	ID         int64     `json:"_id" db:"id"`
	Prompt     string    `json:"prompt" db:"prompt"`
	PaperID    int64     `json:"paper_id" db:"paper_id"`
	PaperTitle string    `json:"paper_title" db:"paper_title"`
	Model      string    `json:"model" db:"model"`
	Rebuttal   int       `json:"rebuttal" db:"rebuttal"`
	Prediction Label     `json:"prediction" db:"prediction"`
	Decision   string    `json:"decision" db:"decision"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Outcome pairs a stored prediction with the paper's ground-truth decision.
type Outcome struct {
	PaperID    int64  `json:"paper_id" db:"paper_id"`
	PaperTitle string `json:"paper_title" db:"paper_title"`
	Predicted  Label  `json:"predicted" db:"prediction"`
	Actual     string `json:"actual" db:"decision"`
}

// fold trims and case-folds s. Casers are stateful, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(norm.NFKC.String(s)))
}

// NormalizeLabel maps stored or incoming label text onto Accept, Reject or Borderline.
// Anything starting with "yes" or equal to "accept" is Accept; "no" and "reject" are
// Reject; everything else is Borderline.
func NormalizeLabel(s string) Label {
	f := fold(s)
	switch {
	case strings.HasPrefix(f, "yes"), f == "accept":
		return Accept
	case f == "no", f == "reject":
		return Reject
	default:
		return Borderline
	}
}

// NormalizeDecision maps a free-text conference decision onto Accept or Reject.
// Only "no" and "reject" count as Reject; every other value, empty included, is Accept.
func NormalizeDecision(s string) Label {
	switch fold(s) {
	case "no", "reject":
		return Reject
	default:
		return Accept
	}
}

// NormalizeResponse maps a raw labeler reply onto Accept or Reject. Replies that
// start with YES or ACCEPT are Accept, all others Reject.
func NormalizeResponse(s string) Label {
	u := strings.ToUpper(strings.TrimSpace(s))
	if strings.HasPrefix(u, "YES") || strings.HasPrefix(u, "ACCEPT") {
		return Accept
	}
	return Reject
}
