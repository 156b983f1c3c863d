package rewardpool

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/polyfi/polyd/internal/lib/fixedmath"
)

var (
	promPoolCount = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "rewardpool",
		Name:      "pool_count",
		Help:      "Number of registered staking pools",
	})
	promTotalAllocPoint = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "rewardpool",
		Name:      "total_alloc_point",
		Help:      "Sum of allocation points across started pools",
	})
	promStakerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "rewardpool",
		Name:      "staker_count",
		Help:      "Number of accounts with a non-zero stake",
	})
	promRewardAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "rewardpool",
		Name:      "reward_available",
		Help:      "Reward token balance still held by the engine, in whole tokens",
	})
)

func toFloat(v *uint256.Int) float64 {
	f := new(big.Float).SetInt(v.ToBig())
	f.Quo(f, new(big.Float).SetInt(fixedmath.One.ToBig()))
	out, _ := f.Float64()
	return out
}
