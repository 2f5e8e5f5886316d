// Package health exposes the process's own operational status (storage
// connectivity, pool utilization) as both an LLM-callable tool and
// Prometheus gauges, grounded on the teacher's server_health/storage_monitor
// tool pair (SUPPLEMENTED FEATURES item 2).
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noble1911/butler/internal/storage"
)

// Pinger is the narrow storage surface the health tool needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Stats() storage.PoolStats
}

// Gauges publishes pool utilization on every check; registered once at
// process startup and updated on each Execute call.
type Gauges struct {
	Open prometheus.Gauge
	InUse prometheus.Gauge
	Idle  prometheus.Gauge
}

// NewGauges builds and registers the pool gauges against reg.
func NewGauges(reg prometheus.Registerer) *Gauges {
	g := &Gauges{
		Open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "butler", Subsystem: "storage", Name: "pool_open_connections",
			Help: "Current open connections in the storage pool.",
		}),
		InUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "butler", Subsystem: "storage", Name: "pool_in_use_connections",
			Help: "Connections currently in use.",
		}),
		Idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "butler", Subsystem: "storage", Name: "pool_idle_connections",
			Help: "Idle connections available for reuse.",
		}),
	}
	if reg != nil {
		reg.MustRegister(g.Open, g.InUse, g.Idle)
	}
	return g
}

func (g *Gauges) record(stats storage.PoolStats) {
	if g == nil {
		return
	}
	g.Open.Set(float64(stats.OpenConnections))
	g.InUse.Set(float64(stats.InUse))
	g.Idle.Set(float64(stats.Idle))
}

// Tool reports storage connectivity and pool utilization.
type Tool struct {
	store  Pinger
	gauges *Gauges
}

// NewTool builds a health Tool. gauges may be nil to skip metrics export.
func NewTool(store Pinger, gauges *Gauges) *Tool {
	return &Tool{store: store, gauges: gauges}
}

func (t *Tool) Name() string { return "system_health" }

func (t *Tool) Description() string {
	return "Reports whether the assistant's storage backend is reachable and how saturated its connection pool is."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

const pingTimeout = 5 * time.Second

func (t *Tool) Execute(ctx context.Context, _ json.RawMessage) (string, error) {
	if t.store == nil {
		return "storage is not configured", nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := t.store.Ping(pingCtx); err != nil {
		return fmt.Sprintf("storage unreachable: %v", err), nil
	}

	stats := t.store.Stats()
	t.gauges.record(stats)

	return fmt.Sprintf(
		"storage: reachable\nopen connections: %d\nin use: %d\nidle: %d",
		stats.OpenConnections, stats.InUse, stats.Idle,
	), nil
}
