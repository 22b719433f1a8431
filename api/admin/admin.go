// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package admin

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/vechain/burnpool/api/admin/apilogs"
	"github.com/vechain/burnpool/api/admin/engines"
	"github.com/vechain/burnpool/api/admin/loglevel"
	"github.com/vechain/burnpool/health"

	healthAPI "github.com/vechain/burnpool/api/admin/health"
)

func New(health *health.Health, apiLogsToggle *atomic.Bool, kicker engines.Kicker, machines ...engines.Engine) http.HandlerFunc {
	router := mux.NewRouter()
	subRouter := router.PathPrefix("/admin").Subrouter()

	loglevel.New().Mount(subRouter, "/loglevel")
	healthAPI.NewAPI(health).Mount(subRouter, "/health")
	apilogs.New(apiLogsToggle).Mount(subRouter, "/apilogs")
	engines.New(kicker, machines...).Mount(subRouter, "/engines")

	handler := handlers.CompressHandler(router)

	return handler.ServeHTTP
}
