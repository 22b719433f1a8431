// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/vechain/burnpool/api/admin"
	"github.com/vechain/burnpool/api/admin/engines"
	"github.com/vechain/burnpool/co"
	"github.com/vechain/burnpool/health"
)

// StartAdminServer serves the admin API on addr. It returns the base url and a function
// stopping the server.
func StartAdminServer(
	addr string,
	health *health.Health,
	apiLogsToggle *atomic.Bool,
	kicker engines.Kicker,
	machines ...engines.Engine,
) (string, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, errors.Wrapf(err, "listen admin API addr [%v]", addr)
	}

	adminHandler := admin.New(health, apiLogsToggle, kicker, machines...)

	srv := &http.Server{Handler: adminHandler, ReadHeaderTimeout: time.Second, ReadTimeout: 5 * time.Second}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/admin", func() {
		srv.Close()
		goes.Wait()
	}, nil
}
