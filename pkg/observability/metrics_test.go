package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRun(t *testing.T) {
	okBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("ok"))
	groupedBefore := testutil.ToFloat64(RecordsReconciled.WithLabelValues("grouped"))
	noneBefore := testutil.ToFloat64(RecordsReconciled.WithLabelValues("none"))
	coercedBefore := testutil.ToFloat64(CoercedCellsTotal)

	ObserveRun(RunStats{
		Grouped:      3,
		Fallback:     1,
		Unmatched:    2,
		CoercedCells: 4,
		MatchPercent: 66.67,
		Elapsed:      20 * time.Millisecond,
	})

	assert.Equal(t, okBefore+1, testutil.ToFloat64(RunsTotal.WithLabelValues("ok")))
	assert.Equal(t, groupedBefore+3, testutil.ToFloat64(RecordsReconciled.WithLabelValues("grouped")))
	assert.Equal(t, noneBefore+2, testutil.ToFloat64(RecordsReconciled.WithLabelValues("none")))
	assert.Equal(t, coercedBefore+4, testutil.ToFloat64(CoercedCellsTotal))
	assert.Equal(t, 66.67, testutil.ToFloat64(LastMatchPercent))
}

func TestObserveRunFailure(t *testing.T) {
	schemaBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("schema_error"))
	errorBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("error"))

	ObserveRunFailure(true)
	ObserveRunFailure(false)
	ObserveRunFailure(false)

	assert.Equal(t, schemaBefore+1, testutil.ToFloat64(RunsTotal.WithLabelValues("schema_error")))
	assert.Equal(t, errorBefore+2, testutil.ToFloat64(RunsTotal.WithLabelValues("error")))
}
