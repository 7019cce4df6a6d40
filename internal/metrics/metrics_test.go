package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("select", "metrics_test_table"))

	RecordDBQuery("select", "metrics_test_table", time.Now(), nil)
	RecordDBQuery("select", "metrics_test_table", time.Now(), errors.New("boom"))

	after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("select", "metrics_test_table"))
	assert.Equal(t, before+1, after)
}

func TestRecordLabelerCall(t *testing.T) {
	RecordLabelerCall("metrics-test", 10*time.Millisecond, nil)
	RecordLabelerCall("metrics-test", 10*time.Millisecond, nil)
	RecordLabelerCall("metrics-test", 10*time.Millisecond, errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(LabelerRequests.WithLabelValues("metrics-test", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(LabelerRequests.WithLabelValues("metrics-test", "error")))
}

func TestRecordPredictionStored(t *testing.T) {
	RecordPredictionStored("1999", "Accept", 1, 0)
	RecordPredictionStored("1999", "Accept", 1, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(PredictionsStored.WithLabelValues("1999", "Accept", "1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(PredictionsSuperseded.WithLabelValues("1999")))
}
