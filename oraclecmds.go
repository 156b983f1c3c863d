package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/polyfi/polyd/internal/lib/fixedmath"
	"github.com/polyfi/polyd/internal/lib/misc"
)

func GetOracleCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "oracle",
		Aliases: []string{"o"},
		Usage:   "Post spot prices and manage the TWAP window",
		Before:  checkConfigured,
		Commands: []*cli.Command{
			{
				Name:  "post",
				Usage: "Record a POLY spot price observation",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "price",
						Usage:    "Spot price in pegged units (ie: 0.98)",
						Required: true,
					},
				},
				Action: OraclePost,
			},
			{
				Name:   "update",
				Usage:  "Close the TWAP window, committing the consult price.  Normally happens automatically as part of daemon operations",
				Action: OracleUpdate,
			},
			{
				Name:    "price",
				Aliases: []string{"p"},
				Usage:   "Show committed and running TWAP prices",
				Action:  OraclePrice,
			},
		},
	}
}

func OraclePost(ctx context.Context, command *cli.Command) error {
	spot, err := parseAmount(command.String("price"))
	if err != nil {
		return err
	}
	if err := App.ledger.Oracle.Post(spot); err != nil {
		return err
	}
	misc.Infof(App.logger, "posted spot price:%s", formatAmount(spot))
	return App.ledger.Commit()
}

func OracleUpdate(ctx context.Context, command *cli.Command) error {
	if err := App.ledger.Oracle.Update(); err != nil {
		return err
	}
	price, err := App.ledger.Oracle.Consult(App.ledger.Poly.Name(), fixedmath.One)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "window committed, consult price now:%s", formatAmount(price))
	return App.ledger.Commit()
}

func OraclePrice(ctx context.Context, command *cli.Command) error {
	polyName := App.ledger.Poly.Name()
	if committed, err := App.ledger.Oracle.Consult(polyName, fixedmath.One); err == nil {
		fmt.Printf("committed: %s\n", formatAmount(committed))
	} else {
		fmt.Println("committed: (no window committed yet)")
	}
	if running, err := App.ledger.Oracle.TWAP(polyName, fixedmath.One); err == nil {
		fmt.Printf("running:   %s\n", formatAmount(running))
	}
	return nil
}
