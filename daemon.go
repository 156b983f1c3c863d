package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mailgun/holster/v4/syncutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssgreg/repeat"

	"github.com/polyfi/polyd/internal/lib/misc"
	"github.com/polyfi/polyd/internal/lib/oracle"
	"github.com/polyfi/polyd/internal/lib/treasury"
)

const (
	epochCheckInterval   = 1 * time.Minute
	metricsRefreshPeriod = 30 * time.Second
)

// Daemon provides a 'little' separation in that we initialize it with some data from the App global set up by
// the process startup, but the Daemon tries to be fairly self-contained after that.
type Daemon struct {
	logger      *slog.Logger
	ledger      *Ledger
	metricsPort int
}

func newDaemon(metricsPort int) *Daemon {
	return &Daemon{
		logger:      App.logger,
		ledger:      App.ledger,
		metricsPort: metricsPort,
	}
}

func (d *Daemon) start(ctx context.Context, wg *sync.WaitGroup) {
	d.logger.Info("Starting polyd daemon")

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.EpochWatcher(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.metricsRefresher(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.serveMetrics(ctx)
	}()
}

// EpochWatcher drives the epoch lifecycle: once the next epoch point passes
// it closes the oracle window and allocates seigniorage.  Missed epochs are
// caught up one per pass.
func (d *Daemon) EpochWatcher(ctx context.Context) {
	defer d.logger.Info("Exiting EpochWatcher")
	d.logger.Info("Starting EpochWatcher")

	for {
		dur := durationToNextEpoch(time.Now(), d.ledger.Treasury.NextEpochPoint(), epochCheckInterval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(dur):
			if time.Now().Before(d.ledger.Treasury.NextEpochPoint()) {
				continue
			}
			if err := d.closeEpoch(ctx); err != nil {
				misc.Errorf(d.logger, "epoch close failed, will retry next pass: %v", err)
				// back off a full interval so a stuck epoch point can't spin us
				select {
				case <-ctx.Done():
					return
				case <-time.After(epochCheckInterval):
				}
			}
		}
	}
}

// closeEpoch commits the oracle window then allocates, retrying transient
// failures with jittered backoff.
func (d *Daemon) closeEpoch(ctx context.Context) error {
	if err := d.ledger.Oracle.Update(); err != nil {
		// A short window just means spot observations are sparse - the
		// treasury consults the prior committed price instead.
		if !errors.Is(err, oracle.ErrPeriodNotElapsed) {
			misc.Warnf(d.logger, "oracle window commit failed: %v", err)
		}
	}
	return repeat.Repeat(
		repeat.Fn(func() error {
			err := d.ledger.Treasury.AllocateSeigniorage(App.caller)
			if err != nil {
				if errors.Is(err, treasury.ErrEpochNotOpened) || errors.Is(err, treasury.ErrNotStarted) {
					return repeat.HintStop(err)
				}
				return repeat.HintTemporary(err)
			}
			return d.ledger.Commit()
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(10),
		repeat.FnOnError(func(err error) error {
			misc.Warnf(d.logger, "retrying seigniorage allocation, error:%v", err.Error())
			return err
		}),
		repeat.WithDelay(
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 5 * time.Second,
				MaxDelay:  10 * time.Second,
			}).Set(),
		),
	)
}

// metricsRefresher re-exports engine gauges on a fixed cadence, fanning the
// refreshes out so one slow engine doesn't starve the rest.
func (d *Daemon) metricsRefresher(ctx context.Context) {
	defer d.logger.Info("Exiting metrics refresher")

	refresh := func() {
		fanOut := syncutil.NewFanOut(4)
		fanOut.Run(func(val any) error {
			d.ledger.Treasury.RefreshMetrics()
			return nil
		}, nil)
		fanOut.Run(func(val any) error {
			d.ledger.Pool.RefreshMetrics()
			return nil
		}, nil)
		fanOut.Wait()
	}
	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(metricsRefreshPeriod):
			refresh()
		}
	}
}

func (d *Daemon) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", d.metricsPort),
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	misc.Infof(d.logger, "serving metrics on :%d", d.metricsPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		misc.Errorf(d.logger, "metrics server failed: %v", err)
	}
}

// durationToNextEpoch bounds the watcher's sleep: never longer than the check
// interval (config can change underneath us), never negative.
func durationToNextEpoch(now time.Time, nextEpochPoint time.Time, checkInterval time.Duration) time.Duration {
	until := nextEpochPoint.Sub(now)
	if until < 0 {
		return 0
	}
	if until > checkInterval {
		return checkInterval
	}
	return until
}
