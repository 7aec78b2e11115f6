package infra

import (
	"context"

	"booking-gatekeeper/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore expõe as decisões como contador. A Key do cliente fica de fora dos
// labels para não explodir a cardinalidade.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekeeper",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limit decisions by outcome and exceeded window.",
	}, []string{"outcome", "window"})

	if reg != nil {
		if err := reg.Register(decisions); err != nil {
			return nil, err
		}
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := ev.Outcome
	if outcome == "" {
		outcome = domain.OutcomeAllowed
	}
	s.decisions.WithLabelValues(string(outcome), string(ev.Window)).Inc()
	return nil
}

// Collector permite registrar/consultar o contador diretamente (ex.: testutil em testes).
func (s *PrometheusStatsStore) Collector() *prometheus.CounterVec { return s.decisions }
