// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/health"
)

type API struct {
	machines *health.Health
}

func NewAPI(machines *health.Health) *API {
	return &API{
		machines: machines,
	}
}

// handleGetHealth answers 503 as soon as one machine crossed the failure threshold.
func (h *API) handleGetHealth(w http.ResponseWriter, _ *http.Request) error {
	status, err := h.machines.Status()
	if err != nil {
		return err
	}
	return writeStatus(w, status.Healthy, status)
}

func (h *API) handleGetMachine(w http.ResponseWriter, req *http.Request) error {
	name := mux.Vars(req)["name"]
	m, healthy, ok := h.machines.Get(name)
	if !ok {
		return utils.HTTPError(errors.Errorf("unknown machine %q", name), http.StatusNotFound)
	}
	return writeStatus(w, healthy, struct {
		health.Machine
		Healthy bool `json:"healthy"`
	}{m, healthy})
}

func writeStatus(w http.ResponseWriter, healthy bool, body any) error {
	w.Header().Set("Content-Type", utils.JSONContentType)
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	return utils.WriteJSON(w, body)
}

func (h *API) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /admin/health").
		HandlerFunc(utils.WrapHandlerFunc(h.handleGetHealth))
	sub.Path("/{name}").
		Methods(http.MethodGet).
		Name("GET /admin/health/{name}").
		HandlerFunc(utils.WrapHandlerFunc(h.handleGetMachine))
}
