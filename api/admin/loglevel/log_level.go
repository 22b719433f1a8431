// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package loglevel

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/log"
)

var logger = log.WithContext("pkg", "loglevel")

// Request sets the level either by name or by the numeric verbosity of the --verbosity flag.
type Request struct {
	Level     string `json:"level,omitempty"`
	Verbosity *int   `json:"verbosity,omitempty"`
}

type Response struct {
	CurrentLevel string `json:"currentLevel"`
}

type LogLevel struct{}

func New() *LogLevel {
	return &LogLevel{}
}

func (l *LogLevel) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodGet).
		Name("get-log-level").
		HandlerFunc(utils.WrapHandlerFunc(l.handleGet))
	sub.Path("").
		Methods(http.MethodPost).
		Name("post-log-level").
		HandlerFunc(utils.WrapHandlerFunc(l.handleSet))
}

func (l *LogLevel) handleGet(w http.ResponseWriter, _ *http.Request) error {
	return utils.WriteJSON(w, current())
}

func (l *LogLevel) handleSet(w http.ResponseWriter, r *http.Request) error {
	var req Request
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "Invalid request body"))
	}
	level, err := req.level()
	if err != nil {
		return utils.BadRequest(err)
	}

	if prev := log.Level(); prev != level {
		log.SetLevel(level)
		logger.Info("log level changed", "from", log.LevelName(prev), "to", log.LevelName(level))
	}
	return utils.WriteJSON(w, current())
}

func (r *Request) level() (slog.Level, error) {
	switch {
	case r.Level != "" && r.Verbosity != nil:
		return 0, errors.New("level and verbosity are exclusive")
	case r.Verbosity != nil:
		if *r.Verbosity < 0 || *r.Verbosity > 5 {
			return 0, errors.New("verbosity out of range [0, 5]")
		}
		return log.FromVerbosity(*r.Verbosity), nil
	case r.Level != "":
		level, err := log.ParseLevel(r.Level)
		if err != nil {
			return 0, errors.New("Invalid verbosity level")
		}
		return level, nil
	default:
		return 0, errors.New("level or verbosity required")
	}
}

func current() Response {
	return Response{CurrentLevel: log.LevelName(log.Level())}
}
