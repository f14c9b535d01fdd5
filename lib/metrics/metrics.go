// Package metrics exports channel readings for Prometheus.
package metrics

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gotmc/caenhv"
)

// Exporter holds the console's metrics.
type Exporter struct {
	reg        *prometheus.Registry
	vmon       *prometheus.GaugeVec
	imon       *prometheus.GaugeVec
	status     *prometheus.GaugeVec
	sets       *prometheus.CounterVec
	pollErrors prometheus.Counter
}

// New creates an exporter with its own registry.
func New() *Exporter {
	labels := []string{"device", "channel"}
	e := &Exporter{
		reg: prometheus.NewRegistry(),
		vmon: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "caenhv_channel_vmon_volts",
			Help: "Measured channel voltage.",
		}, labels),
		imon: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "caenhv_channel_imon_microamps",
			Help: "Measured channel current.",
		}, labels),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "caenhv_channel_status",
			Help: "Channel status word.",
		}, labels),
		sets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caenhv_set_total",
			Help: "Parameter writes by parameter and result.",
		}, []string{"param", "result"}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caenhv_poll_errors_total",
			Help: "Failed reads while polling read-only parameters.",
		}),
	}
	e.reg.MustRegister(e.vmon, e.imon, e.status, e.sets, e.pollErrors)
	return e
}

// Observe records a polled read-only value. Parameters without a gauge are
// ignored.
func (e *Exporter) Observe(dev, ch int, p caenhv.Param, v float64) {
	d, c := strconv.Itoa(dev), strconv.Itoa(ch)
	switch p {
	case caenhv.VMon:
		e.vmon.WithLabelValues(d, c).Set(v)
	case caenhv.IMon:
		e.imon.WithLabelValues(d, c).Set(v)
	case caenhv.ChStatus:
		e.status.WithLabelValues(d, c).Set(v)
	}
}

// PollError counts a failed read.
func (e *Exporter) PollError() { e.pollErrors.Inc() }

// SetResult counts a parameter write.
func (e *Exporter) SetResult(p caenhv.Param, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	e.sets.WithLabelValues(p.String(), result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr in the background. The returned server can
// be shut down by the caller.
func (e *Exporter) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %s", err)
		}
	}()
	return srv
}
