// Package telemetry holds the process-level Prometheus metrics for charge and
// delivery-control outcomes. Metrics are global with bounded label
// cardinality — outcome reasons only, never entity ids.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
)

var (
	chargesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chargecounter_charges_total",
		Help: "Charge requests by outcome status",
	}, []string{"status"})

	chargeRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chargecounter_charge_rejections_total",
		Help: "Rejected charges by reason",
	}, []string{"reason"})

	deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chargecounter_delivery_controls_total",
		Help: "Delivery-control requests by outcome status",
	}, []string{"status"})

	rolloverResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chargecounter_rollover_resets_total",
		Help: "Counters reset by the rollover scheduler",
	})

	inconsistenciesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chargecounter_inconsistencies_total",
		Help: "Multi-key compensation failures requiring out-of-band reconciliation",
	})
)

func init() {
	// Register metrics eagerly. If no Prometheus endpoint is exposed, the registration is harmless.
	prometheus.MustRegister(chargesTotal, chargeRejectionsTotal, deliveriesTotal, rolloverResetsTotal, inconsistenciesTotal)
}

func RecordCharge(out counter.Outcome) {
	chargesTotal.WithLabelValues(string(out.Status)).Inc()
	if out.Status == counter.StatusRejected {
		chargeRejectionsTotal.WithLabelValues(string(out.Reason)).Inc()
	}
}

func RecordDeliveryControl(out counter.Outcome) {
	deliveriesTotal.WithLabelValues(string(out.Status)).Inc()
}

func RecordRolloverResets(n int) {
	if n > 0 {
		rolloverResetsTotal.Add(float64(n))
	}
}

func RecordInconsistency() {
	inconsistenciesTotal.Inc()
}
