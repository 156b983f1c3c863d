package main

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/manifoldco/promptui"

	"github.com/polyfi/polyd/internal/lib/basis"
	"github.com/polyfi/polyd/internal/lib/misc"
	"github.com/polyfi/polyd/internal/lib/oracle"
	"github.com/polyfi/polyd/internal/lib/rewardpool"
	"github.com/polyfi/polyd/internal/lib/treasury"
)

// DefineLedger walks through bootstrapping a brand new ledger instance:
// tokens, sinks, oracle, treasury and reward pool - then writes the first
// state file.
func DefineLedger() error {
	operator, err := getAccount("Enter the account address of the protocol operator", App.caller)
	if err != nil {
		return err
	}
	treasuryAcct, err := getAccount("Enter the ledger address the treasury holds funds at", "treasury.polyfi")
	if err != nil {
		return err
	}
	masonryAcct, err := getAccount("Enter the ledger address of the masonry (boardroom) sink", "masonry.polyfi")
	if err != nil {
		return err
	}
	bondTreasuryAcct, err := getAccount("Enter the ledger address of the bond treasury vesting sink", "bonds.polyfi")
	if err != nil {
		return err
	}
	poolAcct, err := getAccount("Enter the ledger address the reward pool holds stakes at", "rewards.polyfi")
	if err != nil {
		return err
	}
	daoFund, err := getAccount("Enter the DAO fund address (receives its seigniorage share)", "dao.polyfi")
	if err != nil {
		return err
	}
	devFund, err := getAccount("Enter the dev fund address (receives its seigniorage share)", "dev.polyfi")
	if err != nil {
		return err
	}

	periodHours, err := getInt("Enter the epoch period (in hours)", 6, 1, 168)
	if err != nil {
		return err
	}
	startDelayHours, err := getInt("Enter hours until the first epoch opens", 0, 0, 24*30)
	if err != nil {
		return err
	}
	vestDays, err := getInt("Enter the bond treasury vesting duration (in days)", 365, 1, 3650)
	if err != nil {
		return err
	}
	genesisSupply, err := getAmount("Enter the genesis POLY supply (whole tokens)", "10000")
	if err != nil {
		return err
	}
	genesisHolder, err := getAccount("Enter the account receiving the genesis supply", operator)
	if err != nil {
		return err
	}
	spot, err := getAmount("Enter the initial POLY spot price (in pegged units)", "1.0")
	if err != nil {
		return err
	}

	statePath, err := StateFilename(App.network)
	if err != nil {
		return err
	}
	clock := basis.NewLedgerClock(0)
	startTime := clock.Now().Add(time.Duration(startDelayHours) * time.Hour)
	period := time.Duration(periodHours) * time.Hour

	poly := basis.NewMemToken("POLY", treasuryAcct)
	bond := basis.NewMemToken("PBOND", treasuryAcct)
	share := basis.NewMemToken("PSHARE", treasuryAcct)
	if err := poly.Mint(genesisHolder, genesisSupply); err != nil {
		return err
	}

	twap := oracle.New(poly.Name(), period, clock)
	if err := twap.Post(spot); err != nil {
		return err
	}

	masonry := basis.NewMemMasonry(masonryAcct, operator)
	bondTreasury := basis.NewMemBondTreasury(bondTreasuryAcct, startTime,
		time.Duration(vestDays)*24*time.Hour, clock.Now)

	ledger := &Ledger{
		logger:            App.logger,
		path:              statePath,
		network:           App.network,
		Clock:             clock,
		Poly:              poly,
		Bond:              bond,
		Share:             share,
		Oracle:            twap,
		Masonry:           masonry,
		BondTreasury:      bondTreasury,
		TreasuryAccount:   treasuryAcct,
		RewardPoolAccount: poolAcct,
	}
	ledger.Treasury = treasury.New(treasury.Config{
		Logger:       App.logger,
		Account:      treasuryAcct,
		Poly:         poly,
		Bond:         bond,
		Share:        share,
		Oracle:       twap,
		Masonry:      masonry,
		BondTreasury: bondTreasury,
		Clock:        clock,
		Operator:     operator,
		DaoFund:      daoFund,
		DevFund:      devFund,
		StartTime:    startTime,
		Period:       period,
	})
	if err := ledger.Treasury.Initialize(operator); err != nil {
		return err
	}
	ledger.Pool, err = rewardpool.New(rewardpool.Config{
		Logger:    App.logger,
		Poly:      poly,
		Account:   poolAcct,
		Clock:     clock,
		Operator:  operator,
		StartTime: startTime,
	})
	if err != nil {
		return err
	}

	if err := ledger.Save(); err != nil {
		return err
	}
	App.ledger = ledger
	misc.Infof(App.logger, "ledger initialized for network:%s, operator:%s", App.network, operator)
	return nil
}

var validAccountRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,63}$`)

func getAccount(prompt string, defVal string) (string, error) {
	return (&promptui.Prompt{
		Label:   prompt,
		Default: defVal,
		Validate: func(s string) error {
			if !validAccountRegex.MatchString(s) {
				return fmt.Errorf("invalid account address:%s", s)
			}
			return nil
		},
	}).Run()
}

func getInt(prompt string, defVal int, minVal int, maxVal int) (int, error) {
	validate := func(input string) error {
		value, err := strconv.Atoi(input)
		if err != nil {
			return err
		}
		if value < minVal || value > maxVal {
			return fmt.Errorf("value must be between %d and %d", minVal, maxVal)
		}
		return nil
	}
	result, err := (&promptui.Prompt{
		Label:    prompt,
		Default:  strconv.Itoa(defVal),
		Validate: validate,
	}).Run()
	if err != nil {
		return 0, err
	}
	value, _ := strconv.Atoi(result)
	return value, nil
}

func getAmount(prompt string, defVal string) (*uint256.Int, error) {
	result, err := (&promptui.Prompt{
		Label:   prompt,
		Default: defVal,
		Validate: func(s string) error {
			_, err := parseAmount(s)
			return err
		},
	}).Run()
	if err != nil {
		return nil, err
	}
	return parseAmount(result)
}

func yesNo(prompt string) (string, error) {
	return (&promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}).Run()
}
