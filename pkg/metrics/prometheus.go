package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver turns relay events into Prometheus series on a private
// registry.
type PrometheusObserver struct {
	registry *prometheus.Registry

	EventsTotal         *prometheus.CounterVec
	TranslationsTotal   *prometheus.CounterVec
	TranslationDuration *prometheus.HistogramVec
	BreakerEventsTotal  *prometheus.CounterVec
}

// NewPrometheusObserver registers the relay metrics. activeSessions, when
// set, backs the sessions_active gauge.
func NewPrometheusObserver(namespace string, activeSessions func() float64) *PrometheusObserver {
	if namespace == "" {
		namespace = "stella"
	}
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Total relay events by name",
		},
		[]string{"event"},
	)
	translationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Total translations by direction and outcome",
		},
		[]string{"source", "target", "status"},
	)
	translationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_duration_seconds",
			Help:      "Translation latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"source", "target"},
	)
	breakerEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translator_breaker_events_total",
			Help:      "Translator circuit breaker and rate limit events",
		},
		[]string{"event", "provider"},
	)

	registry.MustRegister(
		eventsTotal,
		translationsTotal,
		translationDuration,
		breakerEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if activeSessions != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of active call sessions",
			},
			activeSessions,
		))
	}

	return &PrometheusObserver{
		registry:            registry,
		EventsTotal:         eventsTotal,
		TranslationsTotal:   translationsTotal,
		TranslationDuration: translationDuration,
		BreakerEventsTotal:  breakerEvents,
	}
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	p.EventsTotal.WithLabelValues(ev.Name).Inc()
	switch ev.Name {
	case EventTranslationDone:
		src, tgt := ev.Tags[TagSource], ev.Tags[TagTarget]
		p.TranslationsTotal.WithLabelValues(src, tgt, "ok").Inc()
		p.TranslationDuration.WithLabelValues(src, tgt).Observe(ev.Value)
	case EventTranslationFailed:
		p.TranslationsTotal.WithLabelValues(ev.Tags[TagSource], ev.Tags[TagTarget], "error").Inc()
	case EventBreakerDenied, EventBreakerOpen, EventBreakerClose, EventRateLimit:
		p.BreakerEventsTotal.WithLabelValues(ev.Name, ev.Tags[TagProvider]).Inc()
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *PrometheusObserver) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
