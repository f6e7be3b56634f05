package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/protocol-recon/backend/internal/storage/models"
)

func TestObserverCountsByStatus(t *testing.T) {
	var o Observer

	okBefore := testutil.ToFloat64(OperationTotal.WithLabelValues("cards", "ok"))
	errBefore := testutil.ToFloat64(OperationTotal.WithLabelValues("cards", "error"))

	o.Observe("cards", 10*time.Millisecond, nil)
	o.Observe("cards", 10*time.Millisecond, errors.New("boom"))
	o.Observe("cards", 10*time.Millisecond, nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(OperationTotal.WithLabelValues("cards", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(OperationTotal.WithLabelValues("cards", "error")))
}

func TestObserverIngestionCounters(t *testing.T) {
	var o Observer

	rows := testutil.ToFloat64(RowsIngested.WithLabelValues("APSA"))
	purged := testutil.ToFloat64(SnapshotsPurged.WithLabelValues("APSA"))

	o.RowsIngested(models.SourcePrimary, 120)
	o.SnapshotsPurged(models.SourcePrimary, 0)
	o.SnapshotsPurged(models.SourcePrimary, 1)

	assert.Equal(t, rows+120, testutil.ToFloat64(RowsIngested.WithLabelValues("APSA")))
	assert.Equal(t, purged+1, testutil.ToFloat64(SnapshotsPurged.WithLabelValues("APSA")))
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}
