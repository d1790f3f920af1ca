package service

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssa_requests_total",
			Help: "Analysis requests by transport and result.",
		},
		[]string{"transport", "result"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ssa_request_duration_seconds",
			Help:    "Time from payload receipt to encoded response.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"transport"},
	)
	forecastMethodTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssa_forecast_method_total",
			Help: "Forecasts by the method that produced them.",
		},
		[]string{"method"},
	)
	repaintMissingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ssa_repaint_missing_total",
			Help: "Repaint anchors reported as NaN for lack of history or forecast.",
		},
	)
	backendInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ssa_backend_info",
			Help: "Linear-algebra backend selected at startup.",
		},
		[]string{"backend", "accelerated"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(forecastMethodTotal)
	prometheus.MustRegister(repaintMissingTotal)
	prometheus.MustRegister(backendInfo)
}
