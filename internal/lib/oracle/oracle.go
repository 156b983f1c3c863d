// Package oracle is a fixed-window time-weighted average price oracle.  Spot
// prices get posted as observations; Update commits the accumulated average
// once per window and the treasury consults the committed value.  The window
// length matches the treasury epoch so each epoch trades against the prior
// window's average, not the instantaneous spot.
package oracle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/polyfi/polyd/internal/lib/basis"
	"github.com/polyfi/polyd/internal/lib/fixedmath"
)

var (
	ErrInvalidToken     = errors.New("oracle: invalid token")
	ErrNoObservations   = errors.New("oracle: no price observations yet")
	ErrPeriodNotElapsed = errors.New("oracle: period not elapsed")
)

// TWAPOracle implements basis.Oracle over posted observations.  All persisted
// fields are exported for the daemon state file.
type TWAPOracle struct {
	mu    sync.RWMutex
	clock basis.Clock

	TrackedToken  string       `json:"token"`
	PeriodSeconds int64        `json:"periodSecs"`
	WindowStart   int64        `json:"windowStart"`
	LastObserved  int64        `json:"lastObserved"`
	Cumulative    *uint256.Int `json:"cumulative"` // Σ spot*seconds over the open window
	LastSpot      *uint256.Int `json:"lastSpot"`
	Committed     *uint256.Int `json:"committed"` // average from the last closed window, nil until first Update
}

func New(token string, period time.Duration, clock basis.Clock) *TWAPOracle {
	now := clock.Now().Unix()
	return &TWAPOracle{
		clock:         clock,
		TrackedToken:  token,
		PeriodSeconds: int64(period / time.Second),
		WindowStart:   now,
		LastObserved:  now,
		Cumulative:    new(uint256.Int),
	}
}

// SetClock re-attaches the clock after a state-file restore.
func (o *TWAPOracle) SetClock(clock basis.Clock) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clock = clock
}

// Post records a spot price observation, folding the prior spot into the
// accumulator weighted by the seconds it was in effect.
func (o *TWAPOracle) Post(spot *uint256.Int) error {
	if spot.IsZero() {
		return fmt.Errorf("oracle: zero spot price")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.accrue(o.clock.Now().Unix()); err != nil {
		return err
	}
	o.LastSpot = new(uint256.Int).Set(spot)
	return nil
}

// Update closes the window: the committed consult price becomes the
// time-weighted average of the window just ended.  Fails (and leaves the
// window open) until a full period has elapsed; callers on the allocation
// path swallow that by contract.
func (o *TWAPOracle) Update() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.clock.Now().Unix()
	elapsed := now - o.WindowStart
	if elapsed < o.PeriodSeconds {
		return ErrPeriodNotElapsed
	}
	if o.LastSpot == nil {
		return ErrNoObservations
	}
	if err := o.accrue(now); err != nil {
		return err
	}
	avg, err := fixedmath.Div(o.Cumulative, uint256.NewInt(uint64(elapsed)))
	if err != nil {
		return err
	}
	o.Committed = avg
	o.WindowStart = now
	o.LastObserved = now
	o.Cumulative = new(uint256.Int)
	return nil
}

// Consult returns committed-average*amountIn/1e18 for the tracked token.
func (o *TWAPOracle) Consult(token string, amountIn *uint256.Int) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if token != o.TrackedToken {
		return nil, ErrInvalidToken
	}
	if o.Committed == nil {
		return nil, ErrNoObservations
	}
	return fixedmath.ScaleDown(o.Committed, amountIn)
}

// TWAP returns the running average of the currently open window, falling back
// to the committed value right at a window boundary.
func (o *TWAPOracle) TWAP(token string, amountIn *uint256.Int) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if token != o.TrackedToken {
		return nil, ErrInvalidToken
	}
	now := o.clock.Now().Unix()
	elapsed := now - o.WindowStart
	if elapsed <= 0 || o.LastSpot == nil {
		if o.Committed == nil {
			return nil, ErrNoObservations
		}
		return fixedmath.ScaleDown(o.Committed, amountIn)
	}
	held := uint64(now - o.LastObserved)
	tail, err := fixedmath.Mul(o.LastSpot, uint256.NewInt(held))
	if err != nil {
		return nil, err
	}
	cum, err := fixedmath.Add(o.Cumulative, tail)
	if err != nil {
		return nil, err
	}
	avg, err := fixedmath.Div(cum, uint256.NewInt(uint64(elapsed)))
	if err != nil {
		return nil, err
	}
	return fixedmath.ScaleDown(avg, amountIn)
}

// accrue folds LastSpot into the accumulator up to now; caller holds the lock.
func (o *TWAPOracle) accrue(now int64) error {
	if o.LastSpot == nil || now <= o.LastObserved {
		o.LastObserved = now
		return nil
	}
	held := uint64(now - o.LastObserved)
	add, err := fixedmath.Mul(o.LastSpot, uint256.NewInt(held))
	if err != nil {
		return err
	}
	cum, err := fixedmath.Add(o.Cumulative, add)
	if err != nil {
		return err
	}
	o.Cumulative = cum
	o.LastObserved = now
	return nil
}
