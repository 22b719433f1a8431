// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package engines

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/log"
)

var logger = log.WithContext("pkg", "engines")

// Engine is a state machine that can be paused between batch steps.
type Engine interface {
	Name() string
	Stop() error
	Resume() error
	Stopped() (bool, error)
}

// Preparer is an engine whose rounds can be funded by hand.
type Preparer interface {
	Prepare(fund *uint256.Int) error
}

// Triggerer is an engine with items started on demand.
type Triggerer interface {
	Trigger(id uint64) error
}

// Kicker re-arms the pending step of a machine.
type Kicker interface {
	Kick(name string)
}

type Status struct {
	Name    string `json:"name"`
	Stopped bool   `json:"stopped"`
}

type PrepareRequest struct {
	Fund *uint256.Int `json:"fund"`
}

type Engines struct {
	engines []Engine
	byName  map[string]Engine
	kicker  Kicker
}

func New(kicker Kicker, engines ...Engine) *Engines {
	e := &Engines{
		engines: engines,
		byName:  make(map[string]Engine, len(engines)),
		kicker:  kicker,
	}
	for _, en := range engines {
		e.byName[en.Name()] = en
	}
	return e
}

func (e *Engines) engine(req *http.Request) (Engine, error) {
	name := mux.Vars(req)["name"]
	en, ok := e.byName[name]
	if !ok {
		return nil, utils.HTTPError(errors.Errorf("engine %q not found", name), http.StatusNotFound)
	}
	return en, nil
}

func (e *Engines) kick(name string) {
	if e.kicker != nil {
		e.kicker.Kick(name)
	}
}

func status(en Engine) (*Status, error) {
	stopped, err := en.Stopped()
	if err != nil {
		return nil, err
	}
	return &Status{Name: en.Name(), Stopped: stopped}, nil
}

func (e *Engines) handleList(w http.ResponseWriter, _ *http.Request) error {
	out := make([]*Status, 0, len(e.engines))
	for _, en := range e.engines {
		s, err := status(en)
		if err != nil {
			return err
		}
		out = append(out, s)
	}
	return utils.WriteJSON(w, out)
}

func (e *Engines) handleGet(w http.ResponseWriter, req *http.Request) error {
	en, err := e.engine(req)
	if err != nil {
		return err
	}
	s, err := status(en)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, s)
}

func (e *Engines) handleStop(w http.ResponseWriter, req *http.Request) error {
	en, err := e.engine(req)
	if err != nil {
		return err
	}
	if err := en.Stop(); err != nil {
		return err
	}
	logger.Info("engine stopped", "engine", en.Name())
	e.kick(en.Name())
	return e.handleGet(w, req)
}

func (e *Engines) handleResume(w http.ResponseWriter, req *http.Request) error {
	en, err := e.engine(req)
	if err != nil {
		return err
	}
	if err := en.Resume(); err != nil {
		return err
	}
	logger.Info("engine resumed", "engine", en.Name())
	e.kick(en.Name())
	return e.handleGet(w, req)
}

func (e *Engines) handleKick(w http.ResponseWriter, req *http.Request) error {
	en, err := e.engine(req)
	if err != nil {
		return err
	}
	e.kick(en.Name())
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (e *Engines) handlePrepare(w http.ResponseWriter, req *http.Request) error {
	en, err := e.engine(req)
	if err != nil {
		return err
	}
	p, ok := en.(Preparer)
	if !ok {
		return utils.BadRequest(errors.Errorf("engine %q has no rounds to prepare", en.Name()))
	}
	var body PrepareRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := p.Prepare(body.Fund); err != nil {
		return err
	}
	logger.Info("round prepared by hand", "engine", en.Name(), "fund", body.Fund)
	e.kick(en.Name())
	return e.handleGet(w, req)
}

func (e *Engines) handleTrigger(w http.ResponseWriter, req *http.Request) error {
	en, err := e.engine(req)
	if err != nil {
		return err
	}
	tr, ok := en.(Triggerer)
	if !ok {
		return utils.BadRequest(errors.Errorf("engine %q has nothing to trigger", en.Name()))
	}
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}
	if err := tr.Trigger(id); err != nil {
		return err
	}
	logger.Info("triggered", "engine", en.Name(), "id", id)
	return e.handleGet(w, req)
}

func (e *Engines) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("get-engines").
		HandlerFunc(utils.WrapHandlerFunc(e.handleList))
	sub.Path("/{name}").
		Methods(http.MethodGet).
		Name("get-engine").
		HandlerFunc(utils.WrapHandlerFunc(e.handleGet))
	sub.Path("/{name}/stop").
		Methods(http.MethodPost).
		Name("post-engine-stop").
		HandlerFunc(utils.WrapHandlerFunc(e.handleStop))
	sub.Path("/{name}/resume").
		Methods(http.MethodPost).
		Name("post-engine-resume").
		HandlerFunc(utils.WrapHandlerFunc(e.handleResume))
	sub.Path("/{name}/kick").
		Methods(http.MethodPost).
		Name("post-engine-kick").
		HandlerFunc(utils.WrapHandlerFunc(e.handleKick))
	sub.Path("/{name}/prepare").
		Methods(http.MethodPost).
		Name("post-engine-prepare").
		HandlerFunc(utils.WrapHandlerFunc(e.handlePrepare))
	sub.Path("/{name}/trigger/{id:[0-9]+}").
		Methods(http.MethodPost).
		Name("post-engine-trigger").
		HandlerFunc(utils.WrapHandlerFunc(e.handleTrigger))
}
