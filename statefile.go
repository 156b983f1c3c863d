package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/polyfi/polyd/internal/lib/basis"
	"github.com/polyfi/polyd/internal/lib/oracle"
	"github.com/polyfi/polyd/internal/lib/rewardpool"
	"github.com/polyfi/polyd/internal/lib/treasury"
)

// Ledger aggregates the engines plus the token/sink ledgers they operate on.
// One instance per process; every committed mutating command bumps the block
// height and rewrites the state file.
type Ledger struct {
	logger  *slog.Logger
	path    string
	network string

	Clock        *basis.LedgerClock
	Poly         *basis.MemToken
	Bond         *basis.MemToken
	Share        *basis.MemToken
	Oracle       *oracle.TWAPOracle
	Masonry      *basis.MemMasonry
	BondTreasury *basis.MemBondTreasury
	Treasury     *treasury.Treasury
	Pool         *rewardpool.Engine

	TreasuryAccount   string
	RewardPoolAccount string
}

// ledgerState is the persisted shape of the whole ledger.
type ledgerState struct {
	Height            uint64                 `json:"height"`
	Network           string                 `json:"network"`
	TreasuryAccount   string                 `json:"treasuryAccount"`
	RewardPoolAccount string                 `json:"rewardPoolAccount"`
	Poly              *basis.MemToken        `json:"poly"`
	Bond              *basis.MemToken        `json:"bond"`
	Share             *basis.MemToken        `json:"share"`
	Oracle            *oracle.TWAPOracle     `json:"oracle"`
	Masonry           *basis.MemMasonry      `json:"masonry"`
	BondTreasury      *basis.MemBondTreasury `json:"bondTreasury"`
	Treasury          treasury.State         `json:"treasury"`
	RewardPool        rewardpool.State       `json:"rewardPool"`
}

func StateFilename(network string) (string, error) {
	dataDir := os.Getenv("POLYD_DATADIR")
	if dataDir == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(cfgDir, "polyd")
	}
	statePath := filepath.Join(dataDir, fmt.Sprintf("ledger.%s.json", network))
	err := os.MkdirAll(filepath.Dir(statePath), 0775) // user+group RWX, others RX
	if err != nil {
		return "", fmt.Errorf("error making directory:%s, error:%w", dataDir, err)
	}
	return statePath, nil
}

// LoadLedger reads the state file for the network and rewires the engines
// around the restored data.
func LoadLedger(logger *slog.Logger, network string) (*Ledger, error) {
	statePath, err := StateFilename(network)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(statePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var state ledgerState
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return nil, fmt.Errorf("error reading ledger state %s: %w", statePath, err)
	}

	clock := basis.NewLedgerClock(state.Height)
	state.Oracle.SetClock(clock)
	state.BondTreasury.SetNowFunc(clock.Now)

	led := &Ledger{
		logger:            logger,
		path:              statePath,
		network:           state.Network,
		Clock:             clock,
		Poly:              state.Poly,
		Bond:              state.Bond,
		Share:             state.Share,
		Oracle:            state.Oracle,
		Masonry:           state.Masonry,
		BondTreasury:      state.BondTreasury,
		TreasuryAccount:   state.TreasuryAccount,
		RewardPoolAccount: state.RewardPoolAccount,
	}
	led.Treasury = treasury.New(treasury.Config{
		Logger:       logger,
		Account:      state.TreasuryAccount,
		Poly:         state.Poly,
		Bond:         state.Bond,
		Share:        state.Share,
		Oracle:       state.Oracle,
		Masonry:      state.Masonry,
		BondTreasury: state.BondTreasury,
		Clock:        clock,
		StartTime:    time.Unix(state.Treasury.StartTime, 0),
	})
	led.Treasury.Restore(state.Treasury)

	pool, err := rewardpool.New(rewardpool.Config{
		Logger:    logger,
		Poly:      state.Poly,
		Account:   state.RewardPoolAccount,
		Clock:     clock,
		Operator:  state.RewardPool.Operator,
		StartTime: time.Unix(state.RewardPool.PoolStartTime, 0),
	})
	if err != nil {
		return nil, err
	}
	if err := pool.Restore(state.RewardPool, led.resolveToken); err != nil {
		return nil, err
	}
	led.Pool = pool
	return led, nil
}

// resolveToken maps a persisted token name back to its ledger instance.
func (l *Ledger) resolveToken(name string) basis.Token {
	switch name {
	case l.Poly.Name():
		return l.Poly
	case l.Bond.Name():
		return l.Bond
	case l.Share.Name():
		return l.Share
	}
	return nil
}

// Save writes the full ledger state atomically.
func (l *Ledger) Save() error {
	state := ledgerState{
		Height:            l.Clock.Height(),
		Network:           l.network,
		TreasuryAccount:   l.TreasuryAccount,
		RewardPoolAccount: l.RewardPoolAccount,
		Poly:              l.Poly,
		Bond:              l.Bond,
		Share:             l.Share,
		Oracle:            l.Oracle,
		Masonry:           l.Masonry,
		BondTreasury:      l.BondTreasury,
		Treasury:          l.Treasury.State(),
		RewardPool:        l.Pool.State(),
	}
	data, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return fmt.Errorf("error saving ledger state: %w", err)
	}
	if err := renameio.WriteFile(l.path, data, 0664); err != nil {
		return err
	}
	slog.Info("state saved", "file", l.path)
	return nil
}

// Commit advances the block height and persists - called after every
// successful mutating command so the one-call-per-block guard has a fresh
// height next invocation.
func (l *Ledger) Commit() error {
	l.Clock.Tick()
	return l.Save()
}
