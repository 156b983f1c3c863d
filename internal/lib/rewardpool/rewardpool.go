// Package rewardpool is the time-indexed reward distributor: stakers deposit
// pool tokens and accrue POLY from a two-epoch, piecewise-constant emission
// schedule via the accRewardPerShare accumulator.  Accrual is lazy - pools
// settle on every deposit/withdraw - and reward payouts are best-effort,
// truncated to whatever POLY the engine still holds.
package rewardpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/polyfi/polyd/internal/lib/basis"
	"github.com/polyfi/polyd/internal/lib/fixedmath"
	"github.com/polyfi/polyd/internal/lib/misc"
)

var (
	ErrNotOperator    = errors.New("rewardpool: caller is not the operator")
	ErrDuplicatePool  = errors.New("rewardpool: pool for token already exists")
	ErrBadPoolID      = errors.New("rewardpool: pool id out of range")
	ErrInsufficient   = errors.New("rewardpool: withdraw exceeds staked amount")
	ErrTokenProtected = errors.New("rewardpool: token locked until 90 days past pool end")
	ErrUnknownToken   = errors.New("rewardpool: cannot resolve pool token")
)

// recoverGracePeriod guards GovernanceRecoverUnsupported after pool end.
const recoverGracePeriod = 90 * 24 * time.Hour

type UserInfo struct {
	Amount     *uint256.Int `json:"amount"`
	RewardDebt *uint256.Int `json:"rewardDebt"`
}

type PoolInfo struct {
	token basis.Token

	TokenName         string               `json:"token"`
	AllocPoint        uint64               `json:"allocPoint"`
	LastRewardTime    int64                `json:"lastRewardTime"`
	AccRewardPerShare *uint256.Int         `json:"accRewardPerShare"` // scaled by 1e18
	IsStarted         bool                 `json:"isStarted"`
	Users             map[string]*UserInfo `json:"users"`
}

// State is the persisted shape of the engine.
type State struct {
	Operator        string          `json:"operator"`
	PoolStartTime   int64           `json:"poolStartTime"`
	EpochEndTimes   [2]int64        `json:"epochEndTimes"`
	RatesPerSecond  [3]*uint256.Int `json:"ratesPerSecond"` // terminal rate is zero
	TotalAllocPoint uint64          `json:"totalAllocPoint"`
	Pools           []*PoolInfo     `json:"pools"`
}

type Config struct {
	Logger   *slog.Logger
	Poly     basis.Token // reward token
	Account  string      // engine's holding address on the token ledgers
	Clock    basis.Clock
	Operator string

	StartTime    time.Time
	Epoch1Length time.Duration // default 4 days
	Epoch2Length time.Duration // default 5 days
	Epoch1Total  *uint256.Int  // default 80,000e18
	Epoch2Total  *uint256.Int  // default 60,000e18
}

type Engine struct {
	logger  *slog.Logger
	poly    basis.Token
	account string
	clock   basis.Clock

	sync.RWMutex
	state State
}

func New(cfg Config) (*Engine, error) {
	e1 := cfg.Epoch1Length
	if e1 == 0 {
		e1 = 4 * 24 * time.Hour
	}
	e2 := cfg.Epoch2Length
	if e2 == 0 {
		e2 = 5 * 24 * time.Hour
	}
	t1 := cfg.Epoch1Total
	if t1 == nil {
		t1 = fixedmath.MustFromDec("80000000000000000000000")
	}
	t2 := cfg.Epoch2Total
	if t2 == nil {
		t2 = fixedmath.MustFromDec("60000000000000000000000")
	}
	r0, err := fixedmath.Div(t1, uint256.NewInt(uint64(e1/time.Second)))
	if err != nil {
		return nil, fmt.Errorf("rewardpool: epoch 1 rate: %w", err)
	}
	r1, err := fixedmath.Div(t2, uint256.NewInt(uint64(e2/time.Second)))
	if err != nil {
		return nil, fmt.Errorf("rewardpool: epoch 2 rate: %w", err)
	}
	start := cfg.StartTime.Unix()
	return &Engine{
		logger:  cfg.Logger,
		poly:    cfg.Poly,
		account: cfg.Account,
		clock:   cfg.Clock,
		state: State{
			Operator:       cfg.Operator,
			PoolStartTime:  start,
			EpochEndTimes:  [2]int64{start + int64(e1/time.Second), start + int64(e1/time.Second) + int64(e2/time.Second)},
			RatesPerSecond: [3]*uint256.Int{r0, r1, new(uint256.Int)},
		},
	}, nil
}

func (e *Engine) Account() string { return e.account }

// State returns a snapshot for display and persistence.
func (e *Engine) State() State {
	e.RLock()
	defer e.RUnlock()
	return e.state
}

// Restore replaces the state, re-resolving each pool token by name.
func (e *Engine) Restore(s State, resolve func(name string) basis.Token) error {
	e.Lock()
	defer e.Unlock()
	for _, pool := range s.Pools {
		tok := resolve(pool.TokenName)
		if tok == nil {
			return fmt.Errorf("%w: %s", ErrUnknownToken, pool.TokenName)
		}
		pool.token = tok
		if pool.Users == nil {
			pool.Users = map[string]*UserInfo{}
		}
	}
	e.state = s
	return nil
}

// GeneratedReward integrates the per-second emission rate over [from, to),
// summing each constant-rate segment.  Additive: reward(a,b)+reward(b,c) ==
// reward(a,c) for any a<=b<=c.
func (e *Engine) GeneratedReward(from, to time.Time) (*uint256.Int, error) {
	e.RLock()
	defer e.RUnlock()
	return e.generatedReward(from.Unix(), to.Unix())
}

func (e *Engine) generatedReward(from, to int64) (*uint256.Int, error) {
	if from < e.state.PoolStartTime {
		from = e.state.PoolStartTime
	}
	if to <= from {
		return new(uint256.Int), nil
	}
	segments := [2]struct {
		start, end int64
		rate       *uint256.Int
	}{
		{e.state.PoolStartTime, e.state.EpochEndTimes[0], e.state.RatesPerSecond[0]},
		{e.state.EpochEndTimes[0], e.state.EpochEndTimes[1], e.state.RatesPerSecond[1]},
	}
	total := new(uint256.Int)
	for _, seg := range segments {
		lo, hi := from, to
		if lo < seg.start {
			lo = seg.start
		}
		if hi > seg.end {
			hi = seg.end
		}
		if hi <= lo {
			continue
		}
		part, err := fixedmath.Mul(seg.rate, uint256.NewInt(uint64(hi-lo)))
		if err != nil {
			return nil, err
		}
		total, err = fixedmath.Add(total, part)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Add registers a new pool.  Operator only; one pool per token.  A pool whose
// lastRewardTime still lies in the future stays out of totalAllocPoint until
// its first UpdatePool crosses it.
func (e *Engine) Add(caller string, allocPoint uint64, token basis.Token, withUpdate bool, lastRewardTime time.Time) (int, error) {
	e.Lock()
	defer e.Unlock()
	if caller != e.state.Operator {
		return 0, ErrNotOperator
	}
	for _, pool := range e.state.Pools {
		if pool.TokenName == token.Name() {
			return 0, ErrDuplicatePool
		}
	}
	if withUpdate {
		if err := e.massUpdatePools(); err != nil {
			return 0, err
		}
	}
	now := e.clock.Now().Unix()
	last := lastRewardTime.Unix()
	if lastRewardTime.IsZero() {
		last = 0
	}
	if now < e.state.PoolStartTime {
		// before genesis: rewards can never accrue earlier than pool start
		if last == 0 || last < e.state.PoolStartTime {
			last = e.state.PoolStartTime
		}
	} else {
		if last == 0 || last < now {
			last = now
		}
	}
	isStarted := last <= e.state.PoolStartTime || last <= now
	pool := &PoolInfo{
		token:             token,
		TokenName:         token.Name(),
		AllocPoint:        allocPoint,
		LastRewardTime:    last,
		AccRewardPerShare: new(uint256.Int),
		IsStarted:         isStarted,
		Users:             map[string]*UserInfo{},
	}
	e.state.Pools = append(e.state.Pools, pool)
	if isStarted {
		e.state.TotalAllocPoint += allocPoint
	}
	promPoolCount.Set(float64(len(e.state.Pools)))
	promTotalAllocPoint.Set(float64(e.state.TotalAllocPoint))
	misc.Infof(e.logger, "pool added: token:%s allocPoint:%d started:%v", token.Name(), allocPoint, isStarted)
	return len(e.state.Pools) - 1, nil
}

// Set changes a pool's allocation points.  Operator only.
func (e *Engine) Set(caller string, pid int, allocPoint uint64) error {
	e.Lock()
	defer e.Unlock()
	if caller != e.state.Operator {
		return ErrNotOperator
	}
	pool, err := e.pool(pid)
	if err != nil {
		return err
	}
	if err := e.massUpdatePools(); err != nil {
		return err
	}
	if pool.IsStarted {
		e.state.TotalAllocPoint = e.state.TotalAllocPoint - pool.AllocPoint + allocPoint
	}
	pool.AllocPoint = allocPoint
	promTotalAllocPoint.Set(float64(e.state.TotalAllocPoint))
	return nil
}

func (e *Engine) pool(pid int) (*PoolInfo, error) {
	if pid < 0 || pid >= len(e.state.Pools) {
		return nil, ErrBadPoolID
	}
	return e.state.Pools[pid], nil
}

func (e *Engine) user(pool *PoolInfo, addr string) *UserInfo {
	if u, ok := pool.Users[addr]; ok {
		return u
	}
	u := &UserInfo{Amount: new(uint256.Int), RewardDebt: new(uint256.Int)}
	pool.Users[addr] = u
	return u
}

// MassUpdatePools settles accrual on every pool.  Gas concerns do not apply
// here, but the update-before-alloc-change ordering still does.
func (e *Engine) MassUpdatePools() error {
	e.Lock()
	defer e.Unlock()
	return e.massUpdatePools()
}

func (e *Engine) massUpdatePools() error {
	for pid := range e.state.Pools {
		if err := e.updatePool(pid); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePool settles a single pool's accumulator up to now.  Idempotent: a
// second call at the same instant is a no-op.
func (e *Engine) UpdatePool(pid int) error {
	e.Lock()
	defer e.Unlock()
	return e.updatePool(pid)
}

func (e *Engine) updatePool(pid int) error {
	pool, err := e.pool(pid)
	if err != nil {
		return err
	}
	now := e.clock.Now().Unix()
	if now <= pool.LastRewardTime {
		return nil
	}
	tokenSupply := pool.token.BalanceOf(e.account)
	if !pool.IsStarted {
		pool.IsStarted = true
		e.state.TotalAllocPoint += pool.AllocPoint
		promTotalAllocPoint.Set(float64(e.state.TotalAllocPoint))
	}
	if e.state.TotalAllocPoint > 0 && !tokenSupply.IsZero() {
		generated, err := e.generatedReward(pool.LastRewardTime, now)
		if err != nil {
			return err
		}
		poolReward, err := fixedmath.MulDiv(generated,
			uint256.NewInt(pool.AllocPoint), uint256.NewInt(e.state.TotalAllocPoint))
		if err != nil {
			return err
		}
		perShare, err := fixedmath.MulDiv(poolReward, fixedmath.One, tokenSupply)
		if err != nil {
			return err
		}
		pool.AccRewardPerShare, err = fixedmath.Add(pool.AccRewardPerShare, perShare)
		if err != nil {
			return err
		}
	}
	pool.LastRewardTime = now
	return nil
}

// PendingReward is the view variant: what the user would be paid right now.
func (e *Engine) PendingReward(pid int, addr string) (*uint256.Int, error) {
	e.RLock()
	defer e.RUnlock()
	pool, err := e.pool(pid)
	if err != nil {
		return nil, err
	}
	user, ok := pool.Users[addr]
	if !ok {
		return new(uint256.Int), nil
	}
	acc := new(uint256.Int).Set(pool.AccRewardPerShare)
	now := e.clock.Now().Unix()
	tokenSupply := pool.token.BalanceOf(e.account)
	if now > pool.LastRewardTime && !tokenSupply.IsZero() && e.state.TotalAllocPoint > 0 {
		generated, err := e.generatedReward(pool.LastRewardTime, now)
		if err != nil {
			return nil, err
		}
		poolReward, err := fixedmath.MulDiv(generated,
			uint256.NewInt(pool.AllocPoint), uint256.NewInt(e.state.TotalAllocPoint))
		if err != nil {
			return nil, err
		}
		perShare, err := fixedmath.MulDiv(poolReward, fixedmath.One, tokenSupply)
		if err != nil {
			return nil, err
		}
		acc, err = fixedmath.Add(acc, perShare)
		if err != nil {
			return nil, err
		}
	}
	return e.pending(user, acc)
}

func (e *Engine) pending(user *UserInfo, acc *uint256.Int) (*uint256.Int, error) {
	earned, err := fixedmath.ScaleDown(user.Amount, acc)
	if err != nil {
		return nil, err
	}
	return fixedmath.Sub(earned, user.RewardDebt)
}

// Deposit settles pending reward, then stakes the amount.
func (e *Engine) Deposit(caller string, pid int, amount *uint256.Int) error {
	e.Lock()
	defer e.Unlock()
	if amount == nil {
		amount = new(uint256.Int)
	}
	pool, err := e.pool(pid)
	if err != nil {
		return err
	}
	if err := e.updatePool(pid); err != nil {
		return err
	}
	user := e.user(pool, caller)
	if !user.Amount.IsZero() {
		pending, err := e.pending(user, pool.AccRewardPerShare)
		if err != nil {
			return err
		}
		if !pending.IsZero() {
			e.safeRewardTransfer(caller, pending)
		}
	}
	if !amount.IsZero() {
		if err := pool.token.Transfer(caller, e.account, amount); err != nil {
			return err
		}
		user.Amount, err = fixedmath.Add(user.Amount, amount)
		if err != nil {
			return err
		}
	}
	user.RewardDebt, err = fixedmath.ScaleDown(user.Amount, pool.AccRewardPerShare)
	if err != nil {
		return err
	}
	misc.Debugf(e.logger, "deposit: pool:%d staker:%s amount:%s", pid, caller, amount.Dec())
	return nil
}

// Withdraw settles pending reward, then unstakes the amount.
func (e *Engine) Withdraw(caller string, pid int, amount *uint256.Int) error {
	e.Lock()
	defer e.Unlock()
	if amount == nil {
		amount = new(uint256.Int)
	}
	pool, err := e.pool(pid)
	if err != nil {
		return err
	}
	// guard on the existing record only - a rejected withdraw must not
	// materialize a staker entry
	user, staked := pool.Users[caller]
	if !staked {
		if amount.IsZero() {
			return nil
		}
		return ErrInsufficient
	}
	if user.Amount.Cmp(amount) < 0 {
		return ErrInsufficient
	}
	if err := e.updatePool(pid); err != nil {
		return err
	}
	pending, err := e.pending(user, pool.AccRewardPerShare)
	if err != nil {
		return err
	}
	if !pending.IsZero() {
		e.safeRewardTransfer(caller, pending)
	}
	if !amount.IsZero() {
		user.Amount = new(uint256.Int).Sub(user.Amount, amount)
		if err := pool.token.Transfer(e.account, caller, amount); err != nil {
			return err
		}
	}
	user.RewardDebt, err = fixedmath.ScaleDown(user.Amount, pool.AccRewardPerShare)
	if err != nil {
		return err
	}
	misc.Debugf(e.logger, "withdraw: pool:%d staker:%s amount:%s", pid, caller, amount.Dec())
	return nil
}

// EmergencyWithdraw returns the staked principal and forfeits any pending
// reward - no settlement is attempted.
func (e *Engine) EmergencyWithdraw(caller string, pid int) error {
	e.Lock()
	defer e.Unlock()
	pool, err := e.pool(pid)
	if err != nil {
		return err
	}
	user, ok := pool.Users[caller]
	if !ok || user.Amount.IsZero() {
		return nil
	}
	amount := new(uint256.Int).Set(user.Amount)
	user.Amount = new(uint256.Int)
	user.RewardDebt = new(uint256.Int)
	if err := pool.token.Transfer(e.account, caller, amount); err != nil {
		return err
	}
	misc.Infof(e.logger, "emergency withdraw: pool:%d staker:%s amount:%s", pid, caller, amount.Dec())
	return nil
}

// safeRewardTransfer pays min(amount, balance) - running short of reward
// token truncates the payout instead of failing the whole call.
func (e *Engine) safeRewardTransfer(to string, amount *uint256.Int) {
	balance := e.poly.BalanceOf(e.account)
	if balance.IsZero() {
		return
	}
	pay := fixedmath.Min(amount, balance)
	if err := e.poly.Transfer(e.account, to, pay); err != nil {
		misc.Warnf(e.logger, "reward transfer failed for %s: %v", to, err)
	}
}

// GovernanceRecoverUnsupported sweeps stray tokens; the reward token and
// every staked pool token stay locked until 90 days past pool end.
func (e *Engine) GovernanceRecoverUnsupported(caller string, token basis.Token, amount *uint256.Int, to string) error {
	e.Lock()
	defer e.Unlock()
	if caller != e.state.Operator {
		return ErrNotOperator
	}
	if e.clock.Now().Unix() < e.state.EpochEndTimes[1]+int64(recoverGracePeriod/time.Second) {
		if token.Name() == e.poly.Name() {
			return ErrTokenProtected
		}
		for _, pool := range e.state.Pools {
			if pool.TokenName == token.Name() {
				return ErrTokenProtected
			}
		}
	}
	return token.Transfer(e.account, to, amount)
}

// RefreshMetrics updates per-engine gauges; called by the daemon.
func (e *Engine) RefreshMetrics() {
	e.RLock()
	defer e.RUnlock()
	promPoolCount.Set(float64(len(e.state.Pools)))
	promTotalAllocPoint.Set(float64(e.state.TotalAllocPoint))
	var stakers int
	for _, pool := range e.state.Pools {
		for _, u := range pool.Users {
			if !u.Amount.IsZero() {
				stakers++
			}
		}
	}
	promStakerCount.Set(float64(stakers))
	promRewardAvailable.Set(toFloat(e.poly.BalanceOf(e.account)))
}
