package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwprov/internal/collect"
	"gwprov/internal/portdata"
	"gwprov/internal/provision"
)

var (
	_ provision.Recorder = (*Metrics)(nil)
	_ collect.Observer   = (*Metrics)(nil)
)

func TestRecordOutcome(t *testing.T) {
	m := New()
	ctx := context.Background()

	for _, o := range []provision.Outcome{
		{Workflow: "Activation", Port: "A1", Kind: provision.KindSuccess},
		{Workflow: "Activation", Port: "A2", Kind: provision.KindSuccess},
		{Workflow: "Activation", Port: "A3", Kind: provision.KindFailed, Stage: "Submit"},
		{Workflow: "Refill", Port: "A1", Kind: provision.KindSkipped, Detail: "no MDN"},
	} {
		require.NoError(t, m.RecordOutcome(ctx, o))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("Activation", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("Activation", "failed", "Submit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("Refill", "skipped", "")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.outcomes))
}

func TestPassCompleted(t *testing.T) {
	m := New()
	m.PassCompleted("101", portdata.AttrIMEI, 1, 60)
	m.PassCompleted("101", portdata.AttrIMEI, 2, 64)
	m.PassCompleted("102", portdata.AttrMDN, 1, 12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.passes.WithLabelValues("imei")))
	assert.Equal(t, 64.0, testutil.ToFloat64(m.resolved.WithLabelValues("101", "imei")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.resolved.WithLabelValues("102", "mdn")))
}

func TestRunFinished(t *testing.T) {
	m := New()
	m.RunFinished(provision.Result{Workflow: "Refill"})
	m.RunFinished(provision.Result{Workflow: "Refill", Aborted: true, AbortedAt: "A9"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsAborted.WithLabelValues("Refill")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	require.NoError(t, m.RecordOutcome(context.Background(),
		provision.Outcome{Workflow: "Activation", Kind: provision.KindSuccess}))

	path := filepath.Join(t.TempDir(), "textfile", "gwprov.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gwprov_outcomes_total{kind="success",stage="",workflow="Activation"} 1`)
}
