package signaling

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Peers      prometheus.Gauge
	Relayed    prometheus.Counter
	Rejections *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerdrop",
			Subsystem: "signaling",
			Name:      "peers",
			Help:      "Registered peers.",
		}),
		Relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerdrop",
			Subsystem: "signaling",
			Name:      "signals_relayed_total",
			Help:      "Signals forwarded between peers.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerdrop",
			Subsystem: "signaling",
			Name:      "rejections_total",
			Help:      "Requests the hub refused, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.Peers, m.Relayed, m.Rejections)
	return m
}
