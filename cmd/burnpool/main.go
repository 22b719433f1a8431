// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/vechain/burnpool/api"
	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/co"
	"github.com/vechain/burnpool/config"
	"github.com/vechain/burnpool/dispenser"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/health"
	"github.com/vechain/burnpool/kv"
	"github.com/vechain/burnpool/ledger"
	"github.com/vechain/burnpool/log"
	"github.com/vechain/burnpool/metrics"
	"github.com/vechain/burnpool/raffle"
	"github.com/vechain/burnpool/scheduler"
	"github.com/vechain/burnpool/seed"
	"github.com/vechain/burnpool/xfer"
)

var (
	version   string
	gitCommit string
	gitTag    string

	logger = log.WithContext("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "Burnpool",
		Usage:     "Burn pool reward ledger, raffle and token dispenser",
		Copyright: "2025 VeChain Foundation <https://vechain.org/>",
		Flags: []cli.Flag{
			configFlag,
			dataDirFlag,
			cacheFlag,
			batchSizeFlag,
			apiAddrFlag,
			apiCorsFlag,
			apiPageLimitFlag,
			apiSlowQueriesThresholdFlag,
			apiLog5xxErrorsFlag,
			enableAPILogsFlag,
			pprofFlag,
			verbosityFlag,
			jsonLogsFlag,
			enableMetricsFlag,
			metricsAddrFlag,
			enableAdminFlag,
			adminAddrFlag,
			skipClockCheckFlag,
			transferDBFlag,
			vrfKeyFlag,
		},
		Action: defaultAction,
		Commands: []cli.Command{
			{
				Name:  "solo",
				Usage: "run with an in-memory store and transfer journal for test & dev",
				Flags: []cli.Flag{
					configFlag,
					dataDirFlag,
					cacheFlag,
					batchSizeFlag,
					apiAddrFlag,
					apiCorsFlag,
					apiPageLimitFlag,
					enableAPILogsFlag,
					verbosityFlag,
					jsonLogsFlag,
					enableMetricsFlag,
					metricsAddrFlag,
					enableAdminFlag,
					adminAddrFlag,
					skipClockCheckFlag,
					vrfKeyFlag,
					persistFlag,
					transferDBFlag,
				},
				Action: soloAction,
			},
			{
				Name:  "verify",
				Usage: "check the share supplies and round cursor of the pool database",
				Flags: []cli.Flag{
					configFlag,
					dataDirFlag,
					cacheFlag,
					verbosityFlag,
				},
				Action: verifyAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	exitSignal := handleExitSignal()
	defer func() { logger.Info("exited") }()

	initLogger(ctx)
	cfg := loadConfig(ctx)

	dataDir := makeDataDir(cfg)
	mainDB := openMainDB(ctx, dataDir)
	defer func() { logger.Info("closing main database..."); mainDB.Close() }()

	journal := cfg.Solo.TransferDB
	if journal == "" {
		journal = filepath.Join(dataDir, "transfers.db")
	}
	transfers := openTransferDB(journal)
	defer func() { logger.Info("closing transfer database..."); transfers.Close() }()

	return run(exitSignal, ctx, cfg, mainDB, transfers, dataDir)
}

func soloAction(ctx *cli.Context) error {
	exitSignal := handleExitSignal()
	defer func() { logger.Info("exited") }()

	initLogger(ctx)
	cfg := loadConfig(ctx)

	var (
		mainDB  kv.Store
		dataDir string
	)
	if ctx.Bool(persistFlag.Name) {
		dataDir = makeDataDir(cfg)
		db := openMainDB(ctx, dataDir)
		defer func() { logger.Info("closing main database..."); db.Close() }()
		mainDB = db
	} else {
		dataDir = "Memory"
		db := openMemMainDB()
		defer db.Close()
		mainDB = db
	}

	transfers := openTransferDB(cfg.Solo.TransferDB)
	defer func() { logger.Info("closing transfer database..."); transfers.Close() }()

	return run(exitSignal, ctx, cfg, mainDB, transfers, dataDir)
}

// run builds the engines on db and serves them until exitSignal is done.
func run(exitSignal context.Context, ctx *cli.Context, cfg *config.Config, db kv.Store, transferer xfer.Transferer, dataDir string) error {
	if cfg.Metrics.Enabled {
		metrics.InitializePrometheusMetrics()
	}

	var goes co.Goes
	defer goes.Wait()
	background, cancel := context.WithCancel(exitSignal)
	defer cancel()
	if !ctx.Bool(skipClockCheckFlag.Name) {
		goes.GoCtx(background, watchClock)
	}

	feed := &events.Feed{}
	defer feed.Close()

	rates := newRateFeed(cfg)
	defer rates.Stop()

	l, r, d, err := newEngines(cfg, db, rates, feed)
	if err != nil {
		return err
	}
	entropy := newEntropy(ctx)
	for _, e := range []interface {
		Name() string
		Init(context.Context, seed.Entropy) error
	}{l, r, d} {
		if err := e.Init(exitSignal, entropy(e.Name())); err != nil {
			return err
		}
	}

	machinesHealth := health.New(0)
	sched := scheduler.New(mclock.System{}, scheduler.Options{
		BatchSize: cfg.BatchSize,
		Health:    machinesHealth,
	})
	defer func() { logger.Info("stopping scheduler..."); sched.Close() }()
	for _, m := range []scheduler.Machine{l, r, d} {
		if err := sched.Register(m); err != nil {
			return err
		}
	}

	reqLogger := &atomic.Bool{}
	reqLogger.Store(ctx.Bool(enableAPILogsFlag.Name))

	handler, closeSubs := api.New(
		api.Engines{Ledger: l, Raffle: r, Dispenser: d},
		transferer,
		feed,
		api.Options{
			AllowedOrigins:       cfg.API.CORS,
			PageLimit:            ctx.Int(apiPageLimitFlag.Name),
			PprofOn:              ctx.Bool(pprofFlag.Name),
			EnableMetrics:        cfg.Metrics.Enabled,
			EnableReqLogger:      reqLogger,
			SlowQueriesThreshold: time.Duration(ctx.Uint64(apiSlowQueriesThresholdFlag.Name)) * time.Millisecond,
			Log5xxErrors:         ctx.Bool(apiLog5xxErrorsFlag.Name),
		},
	)
	defer closeSubs()

	apiURL, stopAPI := startAPIServer(cfg.API.Addr, handler)
	defer func() { logger.Info("stopping API server..."); stopAPI() }()

	var adminURL string
	if ctx.Bool(enableAdminFlag.Name) {
		url, stopAdmin, err := api.StartAdminServer(cfg.API.AdminAddr, machinesHealth, reqLogger, sched, l, r, d)
		if err != nil {
			return err
		}
		defer func() { logger.Info("stopping admin server..."); stopAdmin() }()
		adminURL = url
	}

	var metricsURL string
	if cfg.Metrics.Enabled {
		url, stopMetrics := startMetricsServer(cfg.Metrics.Addr)
		defer func() { logger.Info("stopping metrics server..."); stopMetrics() }()
		metricsURL = url
	}

	printStartupMessage(dataDir, apiURL, adminURL, metricsURL)

	<-exitSignal.Done()
	return nil
}

func newEngines(cfg *config.Config, db kv.Store, rates ledger.Rater, feed *events.Feed) (*ledger.Ledger, *raffle.Engine, *dispenser.Dispenser, error) {
	fee, err := burn.ParseUnits(cfg.Ledger.Fee, burn.ShareDecimals)
	if err != nil {
		return nil, nil, nil, err
	}
	l, err := ledger.New(db,
		ledger.WithFee(fee),
		ledger.WithKamikazeLifespan(cfg.Ledger.KamikazeLifespan),
		ledger.WithInitialRound(burn.InitialRoundReward, cfg.Ledger.RoundDelay),
		ledger.WithRater(rates, cfg.Ledger.RatePair),
		ledger.WithEvents(feed),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	slotCap, err := burn.ParseUnits(cfg.Raffle.SlotCap, burn.RewardDecimals)
	if err != nil {
		return nil, nil, nil, err
	}
	raffleOpts := []raffle.Option{
		raffle.WithSlotCap(slotCap),
		raffle.WithRoundDelay(cfg.Raffle.RoundDelay),
		raffle.WithRater(rates),
		raffle.WithEvents(feed),
		raffle.WithTokens(raffleToken(cfg.Raffle.BurnToken), raffleTokens(cfg.Raffle.Tokens)...),
	}
	if cfg.Raffle.Calendar != "" {
		calendar, err := raffle.ParseCalendar(cfg.Raffle.Calendar)
		if err != nil {
			return nil, nil, nil, err
		}
		raffleOpts = append(raffleOpts, raffle.WithCalendar(calendar))
	}
	if cfg.Solo.Treasury != "" {
		balance, err := burn.ParseUnits(cfg.Solo.Treasury, burn.RewardDecimals)
		if err != nil {
			return nil, nil, nil, err
		}
		raffleOpts = append(raffleOpts, raffle.WithTreasury(fixedTreasury{balance}, cfg.Raffle.FundPercent))
	}
	r, err := raffle.New(db, raffleOpts...)
	if err != nil {
		return nil, nil, nil, err
	}

	tokenFee, err := burn.ParseUnits(cfg.Dispenser.TokenFee, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	d, err := dispenser.New(db,
		dispenser.WithToken(tokenFee, cfg.Dispenser.TickDelay),
		dispenser.WithPools(commonPool(l), kamikazePool(l), bonfirePool(r)),
		dispenser.WithEvents(feed),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return l, r, d, nil
}
