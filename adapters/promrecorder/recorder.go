package promrecorder

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-reconcile/core"
)

// DurationBuckets covers the engine's pass latencies, from single-event
// ingests to full-tenant consolidation sweeps.
var DurationBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Recorder implements core.MetricsRecorder on a prometheus registry.
// Collectors are registered lazily on first use; the label set of a metric
// is fixed by its first observation and later calls are projected onto it,
// dropping unknown tags and filling missing ones with an empty value.
type Recorder struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	counters   map[string]*counterEntry
	histograms map[string]*histogramEntry
}

type counterEntry struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramEntry struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func New(registerer prometheus.Registerer) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Recorder{
		registerer: registerer,
		counters:   map[string]*counterEntry{},
		histograms: map[string]*histogramEntry{},
	}
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value == 0 {
		return
	}
	metricName := sanitizeName(name)
	if metricName == "" {
		return
	}

	r.mu.Lock()
	entry, ok := r.counters[metricName]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricName,
			Help: "Reconciliation engine counter " + metricName + ".",
		}, labels)
		if err := r.registerer.Register(vec); err != nil {
			if already, isDup := err.(prometheus.AlreadyRegisteredError); isDup {
				if existing, isVec := already.ExistingCollector.(*prometheus.CounterVec); isVec {
					vec = existing
				}
			} else {
				r.mu.Unlock()
				return
			}
		}
		entry = &counterEntry{vec: vec, labels: labels}
		r.counters[metricName] = entry
	}
	r.mu.Unlock()

	entry.vec.With(projectLabels(entry.labels, tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	metricName := sanitizeName(name)
	if metricName == "" {
		return
	}

	r.mu.Lock()
	entry, ok := r.histograms[metricName]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricName,
			Help:    "Reconciliation engine histogram " + metricName + ".",
			Buckets: DurationBuckets,
		}, labels)
		if err := r.registerer.Register(vec); err != nil {
			if already, isDup := err.(prometheus.AlreadyRegisteredError); isDup {
				if existing, isVec := already.ExistingCollector.(*prometheus.HistogramVec); isVec {
					vec = existing
				}
			} else {
				r.mu.Unlock()
				return
			}
		}
		entry = &histogramEntry{vec: vec, labels: labels}
		r.histograms[metricName] = entry
	}
	r.mu.Unlock()

	entry.vec.With(projectLabels(entry.labels, tags)).Observe(value)
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

func labelNames(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for key := range tags {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

func projectLabels(labels []string, tags map[string]string) prometheus.Labels {
	projected := make(prometheus.Labels, len(labels))
	for _, label := range labels {
		projected[label] = tags[label]
	}
	return projected
}

var _ core.MetricsRecorder = (*Recorder)(nil)
