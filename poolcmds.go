package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/polyfi/polyd/internal/lib/misc"
)

func GetPoolCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "pool",
		Aliases: []string{"p"},
		Usage:   "Stake into reward pools / manage pool configuration",
		Before:  checkConfigured,
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List reward pools and stakes",
				Action:  PoolsList,
			},
			{
				Name:    "add",
				Aliases: []string{"a"},
				Usage:   "Register a new staking pool (operator only)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Token to stake: POLY, PBOND or PSHARE",
						Required: true,
					},
					&cli.UintFlag{
						Name:     "alloc",
						Usage:    "Allocation points for this pool",
						Required: true,
					},
				},
				Action: PoolAdd,
			},
			{
				Name:  "set",
				Usage: "Change a pool's allocation points (operator only)",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "pool", Usage: "Pool ID (the number in 'pool list')", Required: true},
					&cli.UintFlag{Name: "alloc", Required: true},
				},
				Action: PoolSet,
			},
			{
				Name:  "deposit",
				Usage: "Stake tokens into a pool (settles pending rewards first)",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "pool", Usage: "Pool ID (the number in 'pool list')", Required: true},
					&cli.StringFlag{Name: "amount", Usage: "Amount in whole tokens", Required: true},
				},
				Action: PoolDeposit,
			},
			{
				Name:  "withdraw",
				Usage: "Unstake tokens from a pool (settles pending rewards first)",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "pool", Usage: "Pool ID (the number in 'pool list')", Required: true},
					&cli.StringFlag{Name: "amount", Usage: "Amount in whole tokens", Required: true},
				},
				Action: PoolWithdraw,
			},
			{
				Name:  "pending",
				Usage: "Show pending reward for the issuing account",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "pool", Usage: "Pool ID (the number in 'pool list')", Required: true},
				},
				Action: PoolPending,
			},
			{
				Name:  "emergency-withdraw",
				Usage: "Pull staked principal out, FORFEITING all pending rewards",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "pool", Usage: "Pool ID (the number in 'pool list')", Required: true},
				},
				Action: PoolEmergencyWithdraw,
			},
		},
	}
}

func PoolsList(ctx context.Context, command *cli.Command) error {
	state := App.ledger.Pool.State()

	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Emission epochs end\t%s\t%s\t\n",
		time.Unix(state.EpochEndTimes[0], 0).UTC().Format(time.RFC3339),
		time.Unix(state.EpochEndTimes[1], 0).UTC().Format(time.RFC3339))
	fmt.Fprintln(tw, "Pool\tToken\tAlloc\tStarted\tTotal Staked\tStakers\t")
	for i, pool := range state.Pools {
		staked := App.ledger.resolveToken(pool.TokenName).BalanceOf(App.ledger.RewardPoolAccount)
		var stakers int
		for _, u := range pool.Users {
			if !u.Amount.IsZero() {
				stakers++
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%v\t%s\t%d\t\n", i+1, pool.TokenName, pool.AllocPoint,
			pool.IsStarted, formatAmount(staked), stakers)
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func PoolAdd(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	token := App.ledger.resolveToken(strings.ToUpper(command.String("token")))
	if token == nil {
		return fmt.Errorf("unknown token:%s", command.String("token"))
	}
	pid, err := App.ledger.Pool.Add(caller, command.Uint("alloc"), token, true, time.Time{})
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "added pool:%d for token:%s", pid+1, token.Name())
	return App.ledger.Commit()
}

func PoolSet(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	pid, err := poolID(command)
	if err != nil {
		return err
	}
	if err := App.ledger.Pool.Set(caller, pid, command.Uint("alloc")); err != nil {
		return err
	}
	return App.ledger.Commit()
}

func PoolDeposit(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	pid, err := poolID(command)
	if err != nil {
		return err
	}
	amount, err := parseAmount(command.String("amount"))
	if err != nil {
		return err
	}
	if err := App.ledger.Pool.Deposit(caller, pid, amount); err != nil {
		return err
	}
	misc.Infof(App.logger, "deposited %s into pool:%d", formatAmount(amount), pid+1)
	return App.ledger.Commit()
}

func PoolWithdraw(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	pid, err := poolID(command)
	if err != nil {
		return err
	}
	amount, err := parseAmount(command.String("amount"))
	if err != nil {
		return err
	}
	if err := App.ledger.Pool.Withdraw(caller, pid, amount); err != nil {
		return err
	}
	misc.Infof(App.logger, "withdrew %s from pool:%d", formatAmount(amount), pid+1)
	return App.ledger.Commit()
}

func PoolPending(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	pid, err := poolID(command)
	if err != nil {
		return err
	}
	pending, err := App.ledger.Pool.PendingReward(pid, caller)
	if err != nil {
		return err
	}
	fmt.Printf("pending POLY for %s in pool %d: %s\n", caller, pid+1, formatAmount(pending))
	return nil
}

func PoolEmergencyWithdraw(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	pid, err := poolID(command)
	if err != nil {
		return err
	}
	if err := App.ledger.Pool.EmergencyWithdraw(caller, pid); err != nil {
		return err
	}
	misc.Infof(App.logger, "emergency withdrawal from pool:%d - pending rewards forfeited", pid+1)
	return App.ledger.Commit()
}

// poolID converts the 1-based CLI pool number to the engine's 0-based index.
func poolID(command *cli.Command) (int, error) {
	id := int(command.Uint("pool"))
	if id < 1 {
		return 0, fmt.Errorf("pool numbers start at 1.  See the pool list output")
	}
	return id - 1, nil
}
