package prompt

import "iclr-explorer/internal/models"

// Rubric describes how a conference's review values are rendered: which fields,
// in which order, and which of them are scores to be spelled out.
type Rubric struct {
	Fields  []string
	Numeric map[string]map[int]string
}

var ratingScores = map[int]string{
	1:  "Very Strong Reject: For instance, a paper with incorrect statements, improper (e.g., offensive) language, unaddressed ethical considerations, incorrect results and/or flawed methodology (e.g., training using a test set).",
	2:  "Strong Reject: For instance, a paper with major technical flaws, and/or poor evaluation, limited impact, poor reproducibility and mostly unaddressed ethical considerations.",
	3:  "reject, not good enough",
	4:  "Borderline reject: Technically solid paper where reasons to reject, e.g., limited evaluation, outweigh reasons to accept, e.g., good evaluation. Please use sparingly.",
	5:  "marginally below the acceptance threshold",
	6:  "marginally above the acceptance threshold",
	7:  "Accept: Technically solid paper, with high impact on at least one sub-area, or moderate-to-high impact on more than one areas, with good-to-excellent evaluation, resources, reproducibility, and no unaddressed ethical considerations.",
	8:  "accept, good paper",
	9:  "Very Strong Accept: Technically flawless paper with groundbreaking impact on at least one area of AI/ML and excellent impact on multiple areas of AI/ML, with flawless evaluation, resources, and reproducibility, and no unaddressed ethical considerations.",
	10: "strong accept, should be highlighted at the conference",
}

var confidenceScores = map[int]string{
	1: "Your assessment is an educated guess. The submission is not in your area or the submission was difficult to understand. Math/other details were not carefully checked.",
	2: "You are willing to defend your assessment, but it is quite likely that you did not understand the central parts of the submission or that you are unfamiliar with some pieces of related work. Math/other details were not carefully checked.",
	3: "You are fairly confident in your assessment. It is possible that you did not understand some parts of the submission or that you are unfamiliar with some pieces of related work. Math/other details were not carefully checked.",
	4: "You are confident in your assessment, but not absolutely certain. It is unlikely, but not impossible, that you did not understand some parts of the submission or that you are unfamiliar with some pieces of related work.",
	5: "You are absolutely certain about your assessment. You are very familiar with the related work and checked the math/other details carefully.",
}

var miscScores = map[int]string{
	1: "poor",
	2: "fair",
	3: "good",
	4: "excellent",
}

// ICLR is the OpenReview rubric used for ICLR and most other venues.
var ICLR = Rubric{
	Fields: []string{
		models.FieldSummary,
		models.FieldSoundness,
		models.FieldPresentation,
		models.FieldContribution,
		models.FieldStrengths,
		models.FieldWeaknesses,
		models.FieldQuestions,
		models.FieldLimitations,
		models.FieldRating,
		models.FieldConfidence,
	},
	Numeric: map[string]map[int]string{
		models.FieldSoundness:    miscScores,
		models.FieldPresentation: miscScores,
		models.FieldContribution: miscScores,
		models.FieldRating:       ratingScores,
		models.FieldConfidence:   confidenceScores,
	},
}

// ICML uses a free-text form with a single overall recommendation score.
var ICML = Rubric{
	Fields: []string{
		"summary",
		"claims_and_evidence",
		"methods_and_evaluation_criteria",
		"theoretical_claims",
		"experimental_designs_or_analyses",
		"supplementary_material",
		"relation_to_broader_scientific_literature",
		"essential_references_not_discussed",
		"other_strengths_and_weaknesses",
		"other_comments_or_suggestions",
		"questions_for_authors",
		"overall_recommendation",
	},
	Numeric: map[string]map[int]string{
		"overall_recommendation": ratingScores,
	},
}

// ForConference returns the rubric for a configured conference name.
func ForConference(name string) Rubric {
	if name == "ICML" {
		return ICML
	}
	return ICLR
}
