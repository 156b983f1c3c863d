package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/polyfi/polyd/internal/lib/misc"
)

func GetBondCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "bond",
		Aliases: []string{"b"},
		Usage:   "Buy and redeem PBOND against the treasury",
		Before:  checkConfigured,
		Commands: []*cli.Command{
			{
				Name:    "rates",
				Aliases: []string{"r"},
				Usage:   "Show current bond pricing and capacity",
				Action:  BondRates,
			},
			{
				Name:  "buy",
				Usage: "Burn POLY below peg for discounted PBOND",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "POLY to burn, in whole tokens",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "price",
						Usage:    "The POLY price the order was placed against - call fails if price moved",
						Required: true,
					},
				},
				Action: BuyBonds,
			},
			{
				Name:  "redeem",
				Usage: "Redeem PBOND for POLY above the ceiling",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "PBOND to redeem, in whole tokens",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "price",
						Usage:    "The POLY price the order was placed against - call fails if price moved",
						Required: true,
					},
				},
				Action: RedeemBonds,
			},
		},
	}
}

func BondRates(ctx context.Context, command *cli.Command) error {
	tr := App.ledger.Treasury

	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if price, err := tr.GetPolyPrice(); err == nil {
		fmt.Fprintf(tw, "POLY price\t%s\t\n", formatAmount(price))
	} else {
		fmt.Fprintf(tw, "POLY price\t(no committed window)\t\n")
	}
	if rate, err := tr.GetBondDiscountRate(); err == nil && !rate.IsZero() {
		fmt.Fprintf(tw, "Discount rate (PBOND per POLY)\t%s\t\n", formatAmount(rate))
	} else {
		fmt.Fprintf(tw, "Discount rate\t(not buying)\t\n")
	}
	if rate, err := tr.GetBondPremiumRate(); err == nil && !rate.IsZero() {
		fmt.Fprintf(tw, "Premium rate (POLY per PBOND)\t%s\t\n", formatAmount(rate))
	} else {
		fmt.Fprintf(tw, "Premium rate\t(not redeeming)\t\n")
	}
	if left, err := tr.GetBurnablePolyLeft(); err == nil {
		fmt.Fprintf(tw, "Burnable POLY left\t%s\t\n", formatAmount(left))
	}
	if redeemable, err := tr.GetRedeemableBonds(); err == nil {
		fmt.Fprintf(tw, "Redeemable PBOND\t%s\t\n", formatAmount(redeemable))
	}
	fmt.Fprintf(tw, "Outstanding PBOND\t%s\t\n", formatAmount(App.ledger.Bond.TotalSupply()))
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func BuyBonds(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	amount, err := parseAmount(command.String("amount"))
	if err != nil {
		return err
	}
	price, err := parseAmount(command.String("price"))
	if err != nil {
		return err
	}
	if err := App.ledger.Treasury.BuyBonds(caller, amount, price); err != nil {
		return err
	}
	misc.Infof(App.logger, "bought bonds, burned %s POLY from:%s", formatAmount(amount), caller)
	return App.ledger.Commit()
}

func RedeemBonds(ctx context.Context, command *cli.Command) error {
	caller, err := requireCaller()
	if err != nil {
		return err
	}
	amount, err := parseAmount(command.String("amount"))
	if err != nil {
		return err
	}
	price, err := parseAmount(command.String("price"))
	if err != nil {
		return err
	}
	if err := App.ledger.Treasury.RedeemBonds(caller, amount, price); err != nil {
		return err
	}
	misc.Infof(App.logger, "redeemed %s PBOND for:%s", formatAmount(amount), caller)
	return App.ledger.Commit()
}
