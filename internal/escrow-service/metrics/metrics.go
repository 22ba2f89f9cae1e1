package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

// Metrics agrupa os coletores do escrow-service
type Metrics struct {
	Operations *prometheus.CounterVec
	Custody    prometheus.Gauge
	Bets       prometheus.Counter
}

// New registra os coletores em reg (prometheus.DefaultRegisterer em produção)
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_operations_total",
			Help: "Operações do escrow por resultado (ok ou código de erro).",
		}, []string{"op", "outcome"}),
		Custody: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "escrow_custody_units",
			Help: "Unidades mínimas atualmente em custódia.",
		}),
		Bets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrow_bets_published_total",
			Help: "Apostas publicadas desde o start do processo.",
		}),
	}
	reg.MustRegister(m.Operations, m.Custody, m.Bets)
	return m
}

// Observe é o escrow.Observer que alimenta os coletores
func (m *Metrics) Observe(op escrow.Op, rec escrow.Record, err error) {
	m.Operations.WithLabelValues(string(op), escrow.Code(err)).Inc()
	if err != nil {
		return
	}
	switch rec.Kind {
	case escrow.KindPublish:
		m.Bets.Inc()
		m.Custody.Add(float64(rec.Price))
	case escrow.KindAccept:
		m.Custody.Add(float64(rec.Price))
	case escrow.KindResolve:
		m.Custody.Sub(float64(rec.Payout))
	}
}
