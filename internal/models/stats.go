package models

// PredictionStats is a stored leaderboard record: the confusion counts a
// prompt reached per year, conference and rebuttal setting. It is imported
// or entered by hand and is independent of the metrics computed on demand
// from stored predictions.
type PredictionStats struct {
	ID          int64        `json:"_id" db:"id"`
	Prompt      string       `json:"prompt" db:"prompt"`
	PromptType  int          `json:"prompt_type" db:"prompt_type"`
	Predictions []StatsEntry `json:"predictions"`
}

// StatsEntry is one run of a prompt.
type StatsEntry struct {
	Year                int    `json:"year" db:"year"`
	Conference          string `json:"conference" db:"conference"`
	NumberOfPredictions int    `json:"number_of_predictions" db:"number_of_predictions"`
	RebuttalInReview    int    `json:"rebuttal_in_review" db:"rebuttal_in_review"`
	FP                  int    `json:"FP" db:"fp"`
	FN                  int    `json:"FN" db:"fn"`
	TP                  int    `json:"TP" db:"tp"`
	TN                  int    `json:"TN" db:"tn"`
}

// Unset entry fields take these values.
const (
	DefaultStatsYear       = 2024
	DefaultStatsConference = "ICLR"
	DefaultPromptType      = -1
)

// StatsSummary aggregates the entries of one prompt type and rebuttal setting.
// Averages are ratios in [0,1] over the entries where they are defined, nil
// when no entry defines them.
type StatsSummary struct {
	PromptType       int      `json:"prompt_type" db:"prompt_type"`
	RebuttalInReview int      `json:"rebuttal_in_review" db:"rebuttal_in_review"`
	TotalPapers      int      `json:"total_papers" db:"total_papers"`
	AvgAccuracy      *float64 `json:"avg_accuracy" db:"avg_accuracy"`
	AvgPrecision     *float64 `json:"avg_precision" db:"avg_precision"`
	AvgRecall        *float64 `json:"avg_recall" db:"avg_recall"`
}
