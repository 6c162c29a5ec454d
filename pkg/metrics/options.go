package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace replaces the "pairank" namespace. Empty keeps the default.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithSubsystem replaces the "ranking" subsystem. Empty keeps the default.
func WithSubsystem(sub string) Option {
	return func(m *Manager) {
		if sub != "" {
			m.subsystem = sub
		}
	}
}

// WithLatencyBuckets sets the histogram buckets, in milliseconds.
func WithLatencyBuckets(ms []float64) Option {
	return func(m *Manager) {
		if len(ms) > 0 {
			m.latencyBuckets = ms
		}
	}
}

// WithRecording turns the package level recorders on or off.
func WithRecording(on bool) Option {
	return func(m *Manager) { m.enabled = on }
}

// WithRefreshInterval sets the period of the gauge updaters in cmd.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshInterval = d
		}
	}
}

// WithConstLabels attaches labels to every collector, e.g. an instance name.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(m *Manager) {
		if len(labels) > 0 {
			m.constLabels = labels
		}
	}
}

// WithRegistry registers the collectors on r instead of the default registerer.
func WithRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}
