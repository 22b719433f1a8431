// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"net/http/pprof"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/vechain/burnpool/api/burners"
	"github.com/vechain/burnpool/api/distributions"
	"github.com/vechain/burnpool/api/middleware"
	"github.com/vechain/burnpool/api/raffles"
	"github.com/vechain/burnpool/api/subscriptions"
	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/dispenser"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/ledger"
	"github.com/vechain/burnpool/log"
	"github.com/vechain/burnpool/raffle"
	"github.com/vechain/burnpool/xfer"
)

var logger = log.WithContext("pkg", "api")

type Options struct {
	AllowedOrigins       string
	PageLimit            int
	EventBacklog         int
	PprofOn              bool
	EnableMetrics        bool
	EnableReqLogger      *atomic.Bool
	SlowQueriesThreshold time.Duration
	Log5xxErrors         bool
}

// Engines are the state machines served by the API. Nil engines are not mounted.
type Engines struct {
	Ledger    *ledger.Ledger
	Raffle    *raffle.Engine
	Dispenser *dispenser.Dispenser
}

// New return api router
func New(
	engines Engines,
	transferer xfer.Transferer,
	feed *events.Feed,
	opts Options,
) (http.HandlerFunc, func()) {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}
	pageLimit := opts.PageLimit
	if pageLimit <= 0 {
		pageLimit = utils.DefaultTake
	}

	router := mux.NewRouter()

	if engines.Ledger != nil {
		burners.New(engines.Ledger, transferer, pageLimit).
			Mount(router, "/burners")
	}
	if engines.Raffle != nil {
		raffles.New(engines.Raffle, transferer, pageLimit).
			Mount(router, "/raffles")
	}
	if engines.Dispenser != nil {
		distributions.New(engines.Dispenser, transferer, pageLimit).
			Mount(router, "/distributions")
	}
	subs := subscriptions.New(feed, origins, opts.EventBacklog)
	subs.Mount(router, "/subscriptions")

	if opts.PprofOn {
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	if opts.EnableMetrics {
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type", strings.ToLower(utils.CallerHeader), strings.ToLower(middleware.RequestIDHeader)}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
	)(handler)

	if opts.EnableReqLogger != nil {
		handler = middleware.RequestLoggerMiddleware(logger, opts.EnableReqLogger, opts.SlowQueriesThreshold, opts.Log5xxErrors)(handler)
	}

	return handler.ServeHTTP, subs.Close // subscriptions handles hijacked conns, which need to be closed
}
