// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/beevik/ntp"
	"github.com/elastic/gosigar"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/fdlimit"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/vechain/burnpool/co"
	"github.com/vechain/burnpool/config"
	"github.com/vechain/burnpool/log"
	"github.com/vechain/burnpool/lvldb"
	"github.com/vechain/burnpool/metrics"
	"github.com/vechain/burnpool/seed"
	"github.com/vechain/burnpool/transferdb"
	"github.com/vechain/burnpool/xrate"
)

func loadKey(keyFile string) (key *ecdsa.PrivateKey, err error) {
	// try to load from file
	if key, err = crypto.LoadECDSA(keyFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		return key, nil
	}

	// no such file, generate new key and write in
	key, err = crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveECDSA(keyFile, key); err != nil {
		return nil, err
	}
	return key, nil
}

// newEntropy returns the seed source of each engine.
func newEntropy(ctx *cli.Context) func(engine string) seed.Entropy {
	keyFile := ctx.String(vrfKeyFlag.Name)
	if keyFile == "" {
		return func(string) seed.Entropy { return seed.SystemEntropy{} }
	}
	key, err := loadKey(keyFile)
	if err != nil {
		fatal(fmt.Sprintf("load vrf key [%v]: %v", keyFile, err))
	}
	logger.Info("seeds are proved by vrf key", "pub", hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey)))
	return func(engine string) seed.Entropy {
		return seed.NewVRFEntropy(key, func() []byte {
			return fmt.Appendf(nil, "burnpool/%s/%d", engine, time.Now().UnixNano())
		})
	}
}

// maxClockOffset is the local clock drift tolerated before warning.
const maxClockOffset = 5 * time.Second

func initLogger(ctx *cli.Context) {
	log.Init(os.Stderr, log.FromVerbosity(ctx.Int(verbosityFlag.Name)), ctx.Bool(jsonLogsFlag.Name))
}

// loadConfig reads the config file, then applies the flags that were set explicitly.
func loadConfig(ctx *cli.Context) *config.Config {
	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		fatal(fmt.Sprintf("load config: %v", err))
	}
	if ctx.IsSet(dataDirFlag.Name) || cfg.DataDir == "" {
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(batchSizeFlag.Name) {
		cfg.BatchSize = ctx.Int(batchSizeFlag.Name)
	}
	if ctx.IsSet(apiAddrFlag.Name) {
		cfg.API.Addr = ctx.String(apiAddrFlag.Name)
	}
	if ctx.IsSet(apiCorsFlag.Name) {
		cfg.API.CORS = ctx.String(apiCorsFlag.Name)
	}
	if ctx.IsSet(adminAddrFlag.Name) {
		cfg.API.AdminAddr = ctx.String(adminAddrFlag.Name)
	}
	if ctx.IsSet(enableMetricsFlag.Name) {
		cfg.Metrics.Enabled = true
	}
	if ctx.IsSet(metricsAddrFlag.Name) {
		cfg.Metrics.Addr = ctx.String(metricsAddrFlag.Name)
	}
	if ctx.IsSet(transferDBFlag.Name) {
		cfg.Solo.TransferDB = ctx.String(transferDBFlag.Name)
	}
	if err := cfg.Validate(); err != nil {
		fatal(fmt.Sprintf("invalid config: %v", err))
	}
	return cfg
}

func makeDataDir(cfg *config.Config) string {
	if cfg.DataDir == "" {
		fatal(fmt.Sprintf("unable to infer default data dir, use -%s to specify", dataDirFlag.Name))
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		fatal(fmt.Sprintf("create data dir [%v]: %v", cfg.DataDir, err))
	}
	return cfg.DataDir
}

func openMainDB(ctx *cli.Context, dataDir string) *lvldb.LevelDB {
	cacheMB := normalizeCacheSize(ctx.Int(cacheFlag.Name))
	logger.Debug("cache size(MB)", "size", cacheMB)

	// Ensure Go's GC ignores the database cache for trigger percentage
	gogc := math.Max(20, math.Min(100, 100/(float64(cacheMB)/1024)))
	logger.Debug("sanitize Go's GC trigger", "percent", int(gogc))
	debug.SetGCPercent(int(gogc))

	fdCache := suggestFDCache()
	logger.Debug("fd cache", "n", fdCache)

	dir := filepath.Join(dataDir, "main.db")
	db, err := lvldb.New(dir, lvldb.Options{
		CacheSize:              cacheMB,
		OpenFilesCacheCapacity: fdCache,
	})
	if err != nil {
		fatal(fmt.Sprintf("open pool database [%v]: %v", dir, err))
	}
	return db
}

func openMemMainDB() *lvldb.LevelDB {
	db, err := lvldb.NewMem()
	if err != nil {
		fatal(fmt.Sprintf("open pool database: %v", err))
	}
	return db
}

func normalizeCacheSize(sizeMB int) int {
	if sizeMB < 16 {
		sizeMB = 16
	}

	var mem gosigar.Mem
	if err := mem.Get(); err != nil {
		logger.Warn("failed to get total mem:", "err", err)
	} else {
		// limit to 1/4 os physical ram
		limitMB := int(mem.Total / 1024 / 1024 / 4)
		if sizeMB > limitMB {
			sizeMB = limitMB
			logger.Warn("cache size(MB) limited", "limit", limitMB)
		}
	}
	return sizeMB
}

func suggestFDCache() int {
	limit, err := fdlimit.Current()
	if err != nil {
		fatal("failed to get fd limit:", err)
	}
	if limit <= 1024 {
		logger.Warn("low fd limit, increase it if possible", "limit", limit)
	}

	n := limit / 2
	if n > 5120 {
		return 5120
	}
	return n
}

// openTransferDB opens the journal at path, or in memory when path is empty.
func openTransferDB(path string) *transferdb.TransferDB {
	var (
		db  *transferdb.TransferDB
		err error
	)
	if path == "" {
		db, err = transferdb.NewMem()
	} else {
		db, err = transferdb.New(path)
	}
	if err != nil {
		fatal(fmt.Sprintf("open transfer database [%v]: %v", path, err))
	}
	return db
}

// newRateFeed builds the exchange rate feed and starts its refresher.
func newRateFeed(cfg *config.Config) *xrate.Feed {
	var src xrate.Source
	if cfg.XRate.URL != "" {
		src = xrate.NewHTTPSource(cfg.XRate.URL, 10*time.Second)
	} else {
		static, err := xrate.ParseStatic(cfg.XRate.Static)
		if err != nil {
			fatal(fmt.Sprintf("parse static rates: %v", err))
		}
		src = static
	}
	feed, err := xrate.NewFeed(src, xrate.WithTTL(cfg.XRate.TTL))
	if err != nil {
		fatal(fmt.Sprintf("create rate feed: %v", err))
	}
	feed.Watch(cfg.Ledger.RatePair, cfg.Raffle.BurnToken.Pair)
	for _, t := range cfg.Raffle.Tokens {
		feed.Watch(t.Pair)
	}
	if err := feed.Start(cfg.XRate.Refresh); err != nil {
		fatal(fmt.Sprintf("start rate refresher: %v", err))
	}
	return feed
}

func startAPIServer(addr string, handler http.Handler) (string, func()) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fatal(fmt.Sprintf("listen API addr [%v]: %v", addr, err))
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: time.Second, ReadTimeout: 5 * time.Second}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/", func() {
		srv.Close()
		goes.Wait()
	}
}

func startMetricsServer(addr string) (string, func()) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fatal(fmt.Sprintf("listen metrics addr [%v]: %v", addr, err))
	}
	router := mux.NewRouter()
	router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())

	srv := &http.Server{Handler: router, ReadHeaderTimeout: time.Second, ReadTimeout: 5 * time.Second}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/metrics", func() {
		srv.Close()
		goes.Wait()
	}
}

// watchClock checks the clock offset at start and then hourly until ctx ends.
func watchClock(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		checkClockOffset()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func checkClockOffset() {
	resp, err := ntp.Query("pool.ntp.org")
	if err != nil {
		logger.Debug("failed to access NTP", "err", err)
		return
	}
	offset := resp.ClockOffset
	if offset < 0 {
		offset = -offset
	}
	if offset > maxClockOffset {
		logger.Warn("clock offset detected", "offset", common.PrettyDuration(resp.ClockOffset))
	}
}

func printStartupMessage(dataDir, apiURL, adminURL, metricsURL string) {
	orNone := func(s string) string {
		if s == "" {
			return "disabled"
		}
		return s
	}
	fmt.Printf(`Starting %v
    Data dir     [ %v ]
    API portal   [ %v ]
    Admin portal [ %v ]
    Metrics      [ %v ]
`,
		common.MakeName("Burnpool", fullVersion()),
		dataDir,
		apiURL,
		orNone(adminURL),
		orNone(metricsURL))
}
