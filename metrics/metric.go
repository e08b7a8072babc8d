package metrics

import (
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	GRPCMetrics = grpcprometheus.NewServerMetrics(
		func(c *prometheus.CounterOpts) {
			c.Namespace = "RangeKV"
		},
	)

	StoreCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "RangeKV",
		Name:      "node_store_count",
		Help:      "number of stores running on this node",
	})

	RegionCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "RangeKV",
		Name:      "store_region_count",
		Help:      "number of regions hosted per store",
	}, []string{"store"})
)

func init() {
	Registry.MustRegister(
		GRPCMetrics,
		StoreCount,
		RegionCount,
	)
	GRPCMetrics.EnableHandlingTimeHistogram(
		func(h *prometheus.HistogramOpts) {
			h.Namespace = "RangeKV"
		},
	)
}
