// Package evaluation scores stored predictions against conference decisions.
package evaluation

import (
	"math/big"
	"strconv"

	"iclr-explorer/internal/models"
)

// ConfusionMatrix counts scored predictions by outcome.
type ConfusionMatrix struct {
	TruePositive  int `json:"truePositive"`
	TrueNegative  int `json:"trueNegative"`
	FalsePositive int `json:"falsePositive"`
	FalseNegative int `json:"falseNegative"`
}

// Total is the number of scored predictions.
func (m ConfusionMatrix) Total() int {
	return m.TruePositive + m.TrueNegative + m.FalsePositive + m.FalseNegative
}

// Metrics is a confusion matrix with its derived rates. Rates are percentages
// rendered with one decimal, "0.0" when undefined.
type Metrics struct {
	ConfusionMatrix
	Accuracy  string `json:"accuracy"`
	Precision string `json:"precision"`
	Recall    string `json:"recall"`
	F1Score   string `json:"f1Score"`
	Total     int    `json:"total"`
	// Excluded counts Borderline predictions left out of the matrix.
	Excluded int `json:"excluded"`
}

// Mismatch is a scored prediction that disagrees with the decision.
type Mismatch struct {
	PaperID    int64        `json:"paper_id"`
	PaperTitle string       `json:"paper_title"`
	Predicted  models.Label `json:"predicted"`
	Actual     models.Label `json:"actual"`
	Decision   string       `json:"decision"`
}

// Tally builds the confusion matrix. Predictions are normalized first; only
// Accept and Reject are counted, the rest are reported as excluded.
func Tally(outcomes []models.Outcome) (ConfusionMatrix, int) {
	var m ConfusionMatrix
	excluded := 0

	for _, o := range outcomes {
		predicted := models.NormalizeLabel(string(o.Predicted))
		if !predicted.Scored() {
			excluded++
			continue
		}

		actual := models.NormalizeDecision(o.Actual)
		switch {
		case predicted == models.Accept && actual == models.Accept:
			m.TruePositive++
		case predicted == models.Reject && actual == models.Reject:
			m.TrueNegative++
		case predicted == models.Accept && actual == models.Reject:
			m.FalsePositive++
		default:
			m.FalseNegative++
		}
	}

	return m, excluded
}

// Compute tallies outcomes and derives the rates.
func Compute(outcomes []models.Outcome) Metrics {
	m, excluded := Tally(outcomes)
	metrics := FromMatrix(m)
	metrics.Excluded = excluded
	return metrics
}

// FromMatrix derives accuracy, precision, recall and F1 from a matrix. F1 is the
// harmonic mean of the already rounded precision and recall percentages.
func FromMatrix(m ConfusionMatrix) Metrics {
	total := m.Total()

	accuracy := ratio(m.TruePositive+m.TrueNegative, total)
	precision := ratio(m.TruePositive, m.TruePositive+m.FalsePositive)
	recall := ratio(m.TruePositive, m.TruePositive+m.FalseNegative)

	f1 := 0.0
	if precision+recall > 0 {
		f1 = roundTenths(2 * precision * recall / (precision + recall))
	}

	return Metrics{
		ConfusionMatrix: m,
		Accuracy:        formatTenths(accuracy),
		Precision:       formatTenths(precision),
		Recall:          formatTenths(recall),
		F1Score:         formatTenths(f1),
		Total:           total,
	}
}

// Mismatches lists scored predictions whose label differs from the decision.
func Mismatches(outcomes []models.Outcome) []Mismatch {
	out := []Mismatch{}
	for _, o := range outcomes {
		predicted := models.NormalizeLabel(string(o.Predicted))
		if !predicted.Scored() {
			continue
		}
		actual := models.NormalizeDecision(o.Actual)
		if predicted != actual {
			out = append(out, Mismatch{
				PaperID:    o.PaperID,
				PaperTitle: o.PaperTitle,
				Predicted:  predicted,
				Actual:     actual,
				Decision:   o.Actual,
			})
		}
	}
	return out
}

// ratio returns num/den as a percentage rounded to one decimal, 0 for den == 0.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return roundTenths(float64(num) / float64(den) * 100)
}

// roundTenths rounds half up on the exact binary value of x, matching how the
// dashboards render numbers. x is never negative here.
func roundTenths(x float64) float64 {
	exact := new(big.Float).SetPrec(256).SetFloat64(x)
	exact.Mul(exact, big.NewFloat(10))
	exact.Add(exact, big.NewFloat(0.5))

	n, _ := exact.Int(nil) // truncation is floor for non-negative values
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 10
}

func formatTenths(x float64) string {
	return strconv.FormatFloat(x, 'f', 1, 64)
}
