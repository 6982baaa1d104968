// Package metrics exposes provisioning and collection counters through a
// Prometheus registry, optionally exported as a node-exporter textfile.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gwprov/internal/portdata"
	"gwprov/internal/provision"
)

const namespace = "gwprov"

// Metrics is one process's metric set. It is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	// outcomes counts port outcomes.
	// Labels: workflow, kind (success, skipped, failed), stage (failing state or "")
	outcomes *prometheus.CounterVec

	// resolved tracks how many ports the latest pass of a build resolved.
	// Labels: gateway, attribute
	resolved *prometheus.GaugeVec

	// passes counts collection passes.
	// Labels: attribute
	passes *prometheus.CounterVec

	// runsAborted counts runs ended by a closed session or cancellation.
	// Labels: workflow
	runsAborted *prometheus.CounterVec
}

// New registers the metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Port outcomes by workflow, kind and failing stage",
		}, []string{"workflow", "kind", "stage"}),
		resolved: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_resolved_ports",
			Help:      "Ports resolved after the latest collection pass",
		}, []string{"gateway", "attribute"}),
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_passes_total",
			Help:      "Console collection passes by attribute",
		}, []string{"attribute"}),
		runsAborted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_aborted_total",
			Help:      "Provisioning runs aborted before the last port",
		}, []string{"workflow"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordOutcome implements provision.Recorder.
func (m *Metrics) RecordOutcome(_ context.Context, o provision.Outcome) error {
	m.outcomes.WithLabelValues(o.Workflow, string(o.Kind), o.Stage).Inc()
	return nil
}

// PassCompleted implements collect.Observer.
func (m *Metrics) PassCompleted(gateway string, attr portdata.Attribute, pass, resolved int) {
	m.passes.WithLabelValues(string(attr)).Inc()
	m.resolved.WithLabelValues(gateway, string(attr)).Set(float64(resolved))
}

// RunFinished counts aborted runs.
func (m *Metrics) RunFinished(res provision.Result) {
	if res.Aborted {
		m.runsAborted.WithLabelValues(res.Workflow).Inc()
	}
}

// WriteTextfile writes the current values in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
