package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want Label
	}{
		{"Yes", Accept},
		{"accept", Accept},
		{"YES please", Accept},
		{"  yes  ", Accept},
		{"Accept", Accept},
		{"No", Reject},
		{"reject", Reject},
		{" REJECT ", Reject},
		{"maybe", Borderline},
		{"Borderline", Borderline},
		{"", Borderline},
		{"O", Borderline},
		{"accepted", Borderline},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLabel(tt.in))
		})
	}
}

func TestNormalizeDecision(t *testing.T) {
	tests := []struct {
		in   string
		want Label
	}{
		{"Reject", Reject},
		{"no", Reject},
		{"Accept (poster)", Accept},
		{"Accept (oral)", Accept},
		{"", Accept},
		{"Withdrawn", Accept},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDecision(tt.in))
		})
	}
}

func TestNormalizeResponse(t *testing.T) {
	assert.Equal(t, Accept, NormalizeResponse(" yes, the paper is strong"))
	assert.Equal(t, Accept, NormalizeResponse("Accept"))
	assert.Equal(t, Reject, NormalizeResponse("No"))
	assert.Equal(t, Reject, NormalizeResponse("Borderline"))
	assert.Equal(t, Reject, NormalizeResponse(""))
}

func TestReviewValues_Numeric(t *testing.T) {
	v := ReviewValues{
		FieldRating:       "6: marginally above the acceptance threshold",
		FieldConfidence:   "4",
		FieldSoundness:    "good",
		FieldPresentation: "",
	}

	n, ok := v.Numeric(FieldRating)
	assert.True(t, ok)
	assert.Equal(t, 6, n)

	n, ok = v.Numeric(FieldConfidence)
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	_, ok = v.Numeric(FieldSoundness)
	assert.False(t, ok)
	_, ok = v.Numeric(FieldPresentation)
	assert.False(t, ok)
	_, ok = v.Numeric(FieldContribution)
	assert.False(t, ok)
}

func TestReviewValues_UnmarshalMixedScalars(t *testing.T) {
	var mr MetaReview
	err := json.Unmarshal([]byte(`{"values":{"rating":8,"confidence":"3","summary":"ok","limitations":null}}`), &mr)
	require.NoError(t, err)

	assert.Equal(t, "8", mr.Values[FieldRating])
	assert.Equal(t, "3", mr.Values[FieldConfidence])
	assert.Equal(t, "ok", mr.Values[FieldSummary])
	_, present := mr.Values[FieldLimitations]
	assert.False(t, present)
}

func TestPartialReviews(t *testing.T) {
	reply := "thanks"
	s := Submission{MetaReviews: MetaReviews{{
		ID: "r1",
		Values: ReviewValues{
			FieldSummary:    "long text",
			FieldStrengths:  "many",
			FieldSoundness:  "3 good",
			FieldRating:     "8",
			FieldConfidence: "4",
		},
		Rebuttal: []RebuttalEntry{{Value: &reply}},
	}}}

	partial := s.PartialReviews()
	require.Len(t, partial, 1)
	assert.Equal(t, ReviewValues{FieldRating: "8", FieldConfidence: "4"}, partial[0].Values)
	assert.Empty(t, partial[0].Rebuttal)
	assert.Equal(t, "r1", partial[0].ID)

	assert.Nil(t, Submission{}.PartialReviews())
}

func TestJSONColumns(t *testing.T) {
	authors := StringList{"Ada", "Grace"}
	v, err := authors.Value()
	require.NoError(t, err)

	var back StringList
	require.NoError(t, back.Scan(v))
	assert.Equal(t, authors, back)

	var nilReviews MetaReviews
	v, err = nilReviews.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var scanned MetaReviews
	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)

	require.NoError(t, scanned.Scan([]byte(`[]`)))
	assert.NotNil(t, scanned)
	assert.Empty(t, scanned)

	assert.Error(t, scanned.Scan(42))
}
