package treasury

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promEpoch = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "treasury",
		Name:      "epoch",
	})
	promPolyPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "treasury",
		Name:      "poly_price",
	})
	promCirculatingSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "treasury",
		Name:      "circulating_supply",
	})
	promSeigniorageSaved = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "treasury",
		Name:      "seigniorage_saved",
	})
	promContractionLeft = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "treasury",
		Name:      "epoch_supply_contraction_left",
	})
	promBondsBought = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "treasury",
		Name:      "bonds_bought_total",
	})
	promBondsRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "treasury",
		Name:      "bonds_redeemed_total",
	})
)
