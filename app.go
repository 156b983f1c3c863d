package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/polyfi/polyd/internal/lib/fixedmath"
	"github.com/polyfi/polyd/internal/lib/misc"
)

var logLevel = new(slog.LevelVar) // Info by default

func initApp() *PolydApp {
	log.SetFlags(0)
	var logger *slog.Logger
	if term.IsTerminal(int(os.Stdout.Fd())) {
		// Are we running on something where output is a tty - so we're being run as CLI vs as a daemon
		logger = slog.New(misc.NewMinimalHandler(os.Stdout,
			misc.MinimalHandlerOptions{SlogOpts: slog.HandlerOptions{Level: logLevel, AddSource: true}}))
	} else {
		// not on console - output as json, but change json key names to be more compatible w/ what google logging
		// expects
		opts := &slog.HandlerOptions{
			AddSource: true,
			Level:     logLevel,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.MessageKey {
					a.Key = "message"
				} else if a.Key == slog.LevelKey && len(groups) == 0 {
					a.Key = "severity"
				}
				return a
			},
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)
	if os.Getenv("DEBUG") == "1" {
		logLevel.Set(slog.LevelDebug)
	}

	misc.LoadEnvSettings(logger)

	// We initialize our wrapper instance first, so we can call its methods in the 'Before' lambda func
	// in initialization of the cli Command instance.
	appConfig := &PolydApp{logger: logger}

	appConfig.cliCmd = &cli.Command{
		Name:    "polyd",
		Usage:   "Ledger daemon and CLI for the POLY seigniorage protocol",
		Version: getVersionInfo(),
		Before: func(ctx context.Context, cmd *cli.Command) error {
			// Further bootstrap of the 'app' but within context of 'cli' helper as it will
			// have access to flags and options (network to use for eg) already set.
			return appConfig.initEnvironment(ctx, cmd)
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "envfile",
				Usage:   "env file to load",
				Sources: cli.EnvVars("POLYD_ENVFILE"),
				Aliases: []string{"e"},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Named ledger instance to operate on",
				Value:   "mainnet",
				Aliases: []string{"n"},
				Sources: cli.EnvVars("POLYD_NETWORK"),
			},
			&cli.StringFlag{
				Name:        "account",
				Usage:       "The account address mutating commands are issued as",
				Sources:     cli.EnvVars("POLYD_ACCOUNT"),
				Destination: &appConfig.caller,
				OnlyOnce:    true,
			},
		},
		Commands: []*cli.Command{
			GetDaemonCmdOpts(),
			GetTreasuryCmdOpts(),
			GetBondCmdOpts(),
			GetPoolCmdOpts(),
			GetOracleCmdOpts(),
		},
	}
	return appConfig
}

type PolydApp struct {
	cliCmd *cli.Command
	logger *slog.Logger
	ledger *Ledger

	// just here for flag bootstrapping destination
	network string
	caller  string
}

// initEnvironment validates the network choice and layers in the
// network-specific env file - the ledger itself only gets loaded by commands
// that need it (treasury init has to run against a missing state file).
func (ac *PolydApp) initEnvironment(ctx context.Context, cmd *cli.Command) error {
	network := cmd.String("network")

	if envfile := cmd.String("envfile"); envfile != "" {
		if err := loadNamedEnvFile(ctx, envfile); err != nil {
			return err
		}
	}
	// quick validity check on possible network names...
	switch network {
	case "sandbox", "testnet", "mainnet":
	default:
		return fmt.Errorf("unknown network:%s", network)
	}
	ac.network = network

	// Now load .env.{network} overrides -ie: .env.sandbox containing test
	// account addresses generated by a bootstrap script
	misc.LoadEnvForNetwork(ac.logger, network)

	if ac.caller == "" {
		ac.caller = os.Getenv("POLYD_ACCOUNT")
	}
	return nil
}

// loadLedger reads the state file into the App, reusing a previously loaded
// instance within the same process.
func (ac *PolydApp) loadLedger() error {
	if ac.ledger != nil {
		return nil
	}
	ledger, err := LoadLedger(ac.logger, ac.network)
	if err != nil {
		return err
	}
	ac.ledger = ledger
	return nil
}

func checkConfigured(ctx context.Context, command *cli.Command) error {
	if err := App.loadLedger(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("ledger not initialized - run 'polyd treasury init' first")
		}
		return err
	}
	return nil
}

// requireCaller guards mutating commands: they all need an issuing account.
func requireCaller() (string, error) {
	if App.caller == "" {
		return "", errors.New("an issuing account is required - use --account or POLYD_ACCOUNT")
	}
	return App.caller, nil
}

func loadNamedEnvFile(ctx context.Context, envFile string) error {
	misc.Infof(App.logger, "loading env file:%s", envFile)
	return godotenv.Load(envFile)
}

// parseAmount converts a whole-token decimal string ("12.5") into the
// 18-decimal fixed representation used everywhere internally.
func parseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("invalid amount:%s", s)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 18 {
		return nil, fmt.Errorf("amount:%s has more than 18 decimal places", s)
	}
	frac += strings.Repeat("0", 18-len(frac))
	wholePart, err := uint256.FromDecimal(whole)
	if err != nil {
		return nil, fmt.Errorf("invalid amount:%s", s)
	}
	fracPart, err := uint256.FromDecimal(frac)
	if err != nil {
		return nil, fmt.Errorf("invalid amount:%s", s)
	}
	scaled, err := fixedmath.Mul(wholePart, fixedmath.One)
	if err != nil {
		return nil, err
	}
	return fixedmath.Add(scaled, fracPart)
}

// formatAmount renders an 18-decimal fixed value as whole tokens, trimming
// trailing zeros.
func formatAmount(v *uint256.Int) string {
	dec := v.Dec()
	if len(dec) <= 18 {
		dec = strings.Repeat("0", 18-len(dec)+1) + dec
	}
	whole, frac := dec[:len(dec)-18], dec[len(dec)-18:]
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// Version is replaced at build time during docker builds w/ 'release' version
// If not defined, we just return the git rev.
var Version string

func getVersionInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "The version information could not be determined"
	}
	var vcsRev = "(unknown)"
	if fnd := slices.IndexFunc(info.Settings, func(v debug.BuildSetting) bool { return v.Key == "vcs.revision" }); fnd != -1 {
		vcsRev = info.Settings[fnd].Value[0:7]
	}
	if Version != "" {
		return fmt.Sprintf("%s [%s]", Version, vcsRev)
	}
	return vcsRev
}
