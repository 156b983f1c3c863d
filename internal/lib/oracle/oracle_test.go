package oracle

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyfi/polyd/internal/lib/basis"
	"github.com/polyfi/polyd/internal/lib/fixedmath"
)

func newTestOracle() (*TWAPOracle, *basis.ManualClock) {
	clock := &basis.ManualClock{T: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New("POLY", time.Hour, clock), clock
}

func TestConsultBeforeFirstUpdate(t *testing.T) {
	o, _ := newTestOracle()
	_, err := o.Consult("POLY", fixedmath.One)
	assert.ErrorIs(t, err, ErrNoObservations)
}

func TestConsultWrongToken(t *testing.T) {
	o, _ := newTestOracle()
	_, err := o.Consult("PBOND", fixedmath.One)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = o.TWAP("PBOND", fixedmath.One)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUpdateRequiresFullWindow(t *testing.T) {
	o, clock := newTestOracle()
	require.NoError(t, o.Post(fixedmath.One))

	clock.Advance(30 * time.Minute)
	assert.ErrorIs(t, o.Update(), ErrPeriodNotElapsed)

	clock.Advance(30 * time.Minute)
	assert.NoError(t, o.Update())
}

func TestTimeWeightedAverage(t *testing.T) {
	o, clock := newTestOracle()
	// 0.90 for the first half hour, 1.10 for the second
	require.NoError(t, o.Post(fixedmath.MustFromDec("900000000000000000")))
	clock.Advance(30 * time.Minute)
	require.NoError(t, o.Post(fixedmath.MustFromDec("1100000000000000000")))
	clock.Advance(30 * time.Minute)
	require.NoError(t, o.Update())

	price, err := o.Consult("POLY", fixedmath.One)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", price.Dec(), "equal halves average to 1.00")

	// Consult scales by amountIn
	price, err = o.Consult("POLY", uint256.NewInt(2_000_000_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", price.Dec())
}

func TestCommittedStableUntilNextUpdate(t *testing.T) {
	o, clock := newTestOracle()
	require.NoError(t, o.Post(fixedmath.One))
	clock.Advance(time.Hour)
	require.NoError(t, o.Update())

	// post wild spots mid-window - committed consult price must not move
	require.NoError(t, o.Post(fixedmath.MustFromDec("5000000000000000000")))
	clock.Advance(10 * time.Minute)
	price, err := o.Consult("POLY", fixedmath.One)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", price.Dec())

	// but the running TWAP does reflect the open window
	running, err := o.TWAP("POLY", fixedmath.One)
	require.NoError(t, err)
	assert.NotEqual(t, "1000000000000000000", running.Dec())
}

func TestTWAPRunningAverage(t *testing.T) {
	o, clock := newTestOracle()
	require.NoError(t, o.Post(fixedmath.MustFromDec("2000000000000000000")))
	clock.Advance(20 * time.Minute)

	running, err := o.TWAP("POLY", fixedmath.One)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", running.Dec(), "single spot dominates the open window")
}

func TestPostZeroSpotRejected(t *testing.T) {
	o, _ := newTestOracle()
	assert.Error(t, o.Post(new(uint256.Int)))
}
