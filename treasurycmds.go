package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/polyfi/polyd/internal/lib/misc"
)

func GetTreasuryCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "treasury",
		Aliases: []string{"t"},
		Usage:   "Monetary policy commands - epoch allocation and governance",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Initialize a brand new ledger for this network - should only be done ONCE, EVER !",
				Action: InitLedger,
			},
			{
				Name:    "show",
				Aliases: []string{"s"},
				Usage:   "Display the current monetary state",
				Before:  checkConfigured,
				Action:  TreasuryShow,
			},
			{
				Name:   "allocate",
				Usage:  "Close the current epoch, allocating seigniorage.  Normally happens automatically as part of daemon operations",
				Before: checkConfigured,
				Action: AllocateSeigniorage,
			},
			{
				Name:  "exclude",
				Usage: "Exclude an address from the circulating supply calculation (append-only)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Address whose POLY balance no longer counts as circulating",
						Required: true,
					},
				},
				Before: checkConfigured,
				Action: ExcludeAddress,
			},
			getTreasurySetCmdOpts(),
			getMasonryCmdOpts(),
		},
	}
}

func InitLedger(ctx context.Context, cmd *cli.Command) error {
	err := App.loadLedger()
	if err == nil {
		result, _ := yesNo("A ledger already exists for this network, do you REALLY want to define an entirely new one")
		if result != "y" {
			return nil
		}
		App.ledger = nil
		return DefineLedger()
	}
	if errors.Is(err, os.ErrNotExist) {
		result, _ := yesNo("Ledger not initialized.  Create brand new ledger")
		if result != "y" {
			return nil
		}
		return DefineLedger()
	}
	return cli.Exit(err, 1)
}

func TreasuryShow(ctx context.Context, command *cli.Command) error {
	var (
		tr    = App.ledger.Treasury
		state = tr.State()
	)
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Network\t%s\t\n", App.network)
	fmt.Fprintf(tw, "Height\t%d\t\n", App.ledger.Clock.Height())
	fmt.Fprintf(tw, "Epoch\t%d\t\n", tr.Epoch())
	fmt.Fprintf(tw, "Next epoch point\t%s\t\n", tr.NextEpochPoint().UTC().Format(time.RFC3339))
	if price, err := tr.GetPolyPrice(); err == nil {
		fmt.Fprintf(tw, "POLY price (TWAP)\t%s\t\n", formatAmount(price))
	} else {
		fmt.Fprintf(tw, "POLY price (TWAP)\t(no committed window)\t\n")
	}
	fmt.Fprintf(tw, "Previous epoch price\t%s\t\n", formatAmount(tr.PreviousEpochPolyPrice()))
	fmt.Fprintf(tw, "Price ceiling\t%s\t\n", formatAmount(state.PolyPriceCeiling))
	if circ, err := tr.CirculatingSupply(); err == nil {
		fmt.Fprintf(tw, "Circulating supply\t%s\t\n", formatAmount(circ))
	}
	fmt.Fprintf(tw, "Seigniorage reserve\t%s\t\n", formatAmount(tr.Reserve()))
	fmt.Fprintf(tw, "Contraction budget\t%s\t\n", formatAmount(state.EpochSupplyContractionLeft))
	fmt.Fprintf(tw, "Bond supply\t%s\t\n", formatAmount(App.ledger.Bond.TotalSupply()))
	fmt.Fprintf(tw, "Bootstrap epochs left\t%d\t\n", bootstrapLeft(state.Epoch, state.BootstrapEpochs))
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func bootstrapLeft(epoch, bootstrapEpochs uint64) uint64 {
	if epoch >= bootstrapEpochs {
		return 0
	}
	return bootstrapEpochs - epoch
}

func AllocateSeigniorage(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	if err := App.ledger.Treasury.AllocateSeigniorage(caller); err != nil {
		return err
	}
	misc.Infof(App.logger, "seigniorage allocated, now in epoch:%d", App.ledger.Treasury.Epoch())
	return App.ledger.Commit()
}

func ExcludeAddress(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	if err := App.ledger.Treasury.AddExcludedFromTotalSupply(caller, command.String("address")); err != nil {
		return err
	}
	return App.ledger.Commit()
}

// getTreasurySetCmdOpts builds the governance setter tree.  Every setter is
// operator-gated by the engine itself; the CLI only shuttles values through.
func getTreasurySetCmdOpts() *cli.Command {
	bpsFlag := func(usage string) cli.Flag {
		return &cli.UintFlag{
			Name:     "bps",
			Usage:    usage,
			Required: true,
		}
	}
	runSet := func(apply func(caller string, cmd *cli.Command) error) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			caller, err := requireCaller()
			if err != nil {
				return err
			}
			if err := apply(caller, cmd); err != nil {
				return err
			}
			return App.ledger.Commit()
		}
	}
	return &cli.Command{
		Name:   "set",
		Usage:  "Governance setters (operator only)",
		Before: checkConfigured,
		Commands: []*cli.Command{
			{
				Name:  "operator",
				Usage: "Hand the operator role to another account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Required: true},
				},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetOperator(caller, cmd.String("address"))
				}),
			},
			{
				Name:  "ceiling",
				Usage: "Set the price ceiling (in pegged units, 1.00 - 1.20)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "price", Required: true},
				},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					v, err := parseAmount(cmd.String("price"))
					if err != nil {
						return err
					}
					return App.ledger.Treasury.SetPolyPriceCeiling(caller, v)
				}),
			},
			{
				Name:   "expansion",
				Usage:  "Set max supply expansion percent",
				Flags:  []cli.Flag{bpsFlag("expansion cap in basis points (10-1000)")},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetMaxSupplyExpansionPercents(caller, cmd.Uint("bps"))
				}),
			},
			{
				Name:  "supply-tier",
				Usage: "Rewrite one supply tier boundary (index 1-8, strict ordering enforced)",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "index", Required: true},
					&cli.StringFlag{Name: "supply", Usage: "tier boundary in whole tokens", Required: true},
				},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					v, err := parseAmount(cmd.String("supply"))
					if err != nil {
						return err
					}
					return App.ledger.Treasury.SetSupplyTiersEntry(caller, int(cmd.Uint("index")), v)
				}),
			},
			{
				Name:  "expansion-tier",
				Usage: "Rewrite one tier's expansion cap",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "index", Required: true},
					bpsFlag("expansion cap in basis points (10-1000)"),
				},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetMaxExpansionTiersEntry(caller, int(cmd.Uint("index")), cmd.Uint("bps"))
				}),
			},
			{
				Name:   "contraction",
				Usage:  "Set max supply contraction percent",
				Flags:  []cli.Flag{bpsFlag("contraction cap in basis points (10-1500)")},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetMaxSupplyContractionPercent(caller, cmd.Uint("bps"))
				}),
			},
			{
				Name:   "debt-ratio",
				Usage:  "Set max debt ratio percent",
				Flags:  []cli.Flag{bpsFlag("debt ceiling in basis points (1000-10000)")},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetMaxDebtRatioPercent(caller, cmd.Uint("bps"))
				}),
			},
			{
				Name:  "bootstrap",
				Usage: "Set bootstrap epoch count and expansion",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "epochs", Required: true},
					bpsFlag("bootstrap expansion in basis points (100-1000)"),
				},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetBootstrap(caller, cmd.Uint("epochs"), cmd.Uint("bps"))
				}),
			},
			{
				Name:  "funds",
				Usage: "Set DAO and dev fund addresses and shares",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dao", Required: true},
					&cli.UintFlag{Name: "dao-bps", Required: true},
					&cli.StringFlag{Name: "dev", Required: true},
					&cli.UintFlag{Name: "dev-bps", Required: true},
				},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetExtraFunds(caller,
						cmd.String("dao"), cmd.Uint("dao-bps"),
						cmd.String("dev"), cmd.Uint("dev-bps"))
				}),
			},
			{
				Name:   "discount-percent",
				Usage:  "Set the bond discount percent",
				Flags:  []cli.Flag{bpsFlag("discount in basis points (0 = flat peg pricing, max 20000)")},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetDiscountPercent(caller, cmd.Uint("bps"))
				}),
			},
			{
				Name:   "premium-percent",
				Usage:  "Set the bond premium percent",
				Flags:  []cli.Flag{bpsFlag("premium in basis points (max 20000)")},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetPremiumPercent(caller, cmd.Uint("bps"))
				}),
			},
			{
				Name:  "premium-threshold",
				Usage: "Set the price threshold (in hundredths of peg, ie: 110) above which redemptions earn premium",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "value", Required: true},
				},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetPremiumThreshold(caller, cmd.Uint("value"))
				}),
			},
			{
				Name:  "max-discount-rate",
				Usage: "Clamp the bond discount rate",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "rate", Usage: "rate in pegged units", Required: true},
				},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					v, err := parseAmount(cmd.String("rate"))
					if err != nil {
						return err
					}
					return App.ledger.Treasury.SetMaxDiscountRate(caller, v)
				}),
			},
			{
				Name:  "max-premium-rate",
				Usage: "Clamp the bond premium rate",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "rate", Usage: "rate in pegged units", Required: true},
				},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					v, err := parseAmount(cmd.String("rate"))
					if err != nil {
						return err
					}
					return App.ledger.Treasury.SetMaxPremiumRate(caller, v)
				}),
			},
			{
				Name:   "minting-factor",
				Usage:  "Set the minting factor applied when expanding while bonds are outstanding",
				Flags:  []cli.Flag{bpsFlag("factor in basis points (10000-20000)")},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetMintingFactorForPayingDebt(caller, cmd.Uint("bps"))
				}),
			},
			{
				Name:   "bond-expansion",
				Usage:  "Set the bond treasury expansion percent",
				Flags:  []cli.Flag{bpsFlag("bond treasury carve-out in basis points (max 1000)")},
				Action: runSet(func(caller string, cmd *cli.Command) error {
					return App.ledger.Treasury.SetBondSupplyExpansionPercent(caller, cmd.Uint("bps"))
				}),
			},
		},
	}
}

// getMasonryCmdOpts exposes the treasury's pass-through control over the
// masonry sink.
func getMasonryCmdOpts() *cli.Command {
	return &cli.Command{
		Name:   "masonry",
		Usage:  "Operate the masonry sink through the treasury (operator only)",
		Before: checkConfigured,
		Commands: []*cli.Command{
			{
				Name:  "operator",
				Usage: "Set the masonry operator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					caller, err := requireCaller()
					if err != nil {
						return err
					}
					if err := App.ledger.Treasury.MasonrySetOperator(caller, cmd.String("address")); err != nil {
						return err
					}
					return App.ledger.Commit()
				},
			},
			{
				Name:  "lockup",
				Usage: "Set masonry withdraw/reward lockup epochs",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "withdraw", Required: true},
					&cli.UintFlag{Name: "reward", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					caller, err := requireCaller()
					if err != nil {
						return err
					}
					if err := App.ledger.Treasury.MasonrySetLockUp(caller, cmd.Uint("withdraw"), cmd.Uint("reward")); err != nil {
						return err
					}
					return App.ledger.Commit()
				},
			},
			{
				Name:  "allocate",
				Usage: "Push an out-of-band allocation at the masonry",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "amount", Usage: "amount in whole tokens", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					caller, err := requireCaller()
					if err != nil {
						return err
					}
					amount, err := parseAmount(cmd.String("amount"))
					if err != nil {
						return err
					}
					if err := App.ledger.Treasury.MasonryAllocateSeigniorage(caller, amount); err != nil {
						return err
					}
					return App.ledger.Commit()
				},
			},
		},
	}
}
