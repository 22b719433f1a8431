// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package loglevel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/log"
)

func serve(t *testing.T, method, body string) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	New().Mount(router, "/admin/loglevel")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, "/admin/loglevel", strings.NewReader(body)))
	return rec
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		status int
		level  string // expected level after the call, empty on error
		errMsg string
	}{
		{"current", http.MethodGet, "", http.StatusOK, "info", ""},
		{"by name", http.MethodPost, `{"level":"debug"}`, http.StatusOK, "debug", ""},
		{"name is case insensitive", http.MethodPost, `{"level":" CRIT "}`, http.StatusOK, "crit", ""},
		{"by verbosity", http.MethodPost, `{"verbosity":5}`, http.StatusOK, "trace", ""},
		{"verbosity zero", http.MethodPost, `{"verbosity":0}`, http.StatusOK, "crit", ""},
		{"unknown name", http.MethodPost, `{"level":"loud"}`, http.StatusBadRequest, "", "Invalid verbosity level"},
		{"verbosity range", http.MethodPost, `{"verbosity":9}`, http.StatusBadRequest, "", "verbosity out of range [0, 5]"},
		{"both", http.MethodPost, `{"level":"warn","verbosity":2}`, http.StatusBadRequest, "", "level and verbosity are exclusive"},
		{"neither", http.MethodPost, `{}`, http.StatusBadRequest, "", "level or verbosity required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log.SetLevel(log.LevelInfo)
			defer log.SetLevel(log.LevelInfo)

			rec := serve(t, tt.method, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			if tt.errMsg != "" {
				assert.Equal(t, tt.errMsg, strings.TrimSpace(rec.Body.String()))
				assert.Equal(t, "info", log.LevelName(log.Level()), "level untouched on error")
				return
			}
			var res Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
			assert.Equal(t, tt.level, res.CurrentLevel)
			assert.Equal(t, tt.level, log.LevelName(log.Level()))
		})
	}
}

func TestLogLevelBadBody(t *testing.T) {
	rec := serve(t, http.MethodPost, `{"level":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Invalid request body"), rec.Body.String())
}
