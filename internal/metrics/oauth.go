package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics del authorization server. Viven en un paquete propio
// para que server, engine y cmd las compartan sin ciclos de import.

var (
	AuthorizationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2_authorizations_total",
		Help: "Decisiones de autorización por resultado (granted, denied, error)",
	}, []string{"result"})

	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2_tokens_issued_total",
		Help: "Tokens emitidos por grant type",
	}, []string{"grant_type"})

	RequestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2_request_errors_total",
		Help: "Errores protocolares respondidos, por nombre de error OAuth2",
	}, []string{"error"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oauth2_request_duration_seconds",
		Help:    "Duración de los requests a los endpoints OAuth2",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// Register registra las métricas en el registry dado (default si es nil).
// Tolera registros repetidos.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		AuthorizationsTotal,
		TokensIssuedTotal,
		RequestErrorsTotal,
		RequestDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
