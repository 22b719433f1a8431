// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package distributions

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/dispenser"
	"github.com/vechain/burnpool/xfer"
)

// Token names the dispensed token.
const Token = "dispensed"

type Distributions struct {
	dispenser  *dispenser.Dispenser
	transferer xfer.Transferer
	pageLimit  int
}

func New(d *dispenser.Dispenser, transferer xfer.Transferer, pageLimit int) *Distributions {
	return &Distributions{
		dispenser:  d,
		transferer: transferer,
		pageLimit:  pageLimit,
	}
}

func parseID(req *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return 0, utils.BadRequest(errors.WithMessage(err, "id"))
	}
	return id, nil
}

func (d *Distributions) handleGetTotals(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.OptionalCaller(req)
	if err != nil {
		return err
	}
	totals, err := d.dispenser.Totals(caller)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, totals)
}

func (d *Distributions) handleList(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	status := dispenser.Scheduled
	if s := query.Get("status"); s != "" {
		var err error
		if status, err = dispenser.ParseStatus(s); err != nil {
			return utils.BadRequest(errors.WithMessage(err, "status"))
		}
	}
	start, err := utils.ParseUint(query.Get("start"))
	if err != nil {
		return errors.WithMessage(err, "start")
	}
	take, err := utils.ParseTake(query.Get("take"), d.pageLimit)
	if err != nil {
		return err
	}
	list, err := d.dispenser.List(status, start, take)
	if err != nil {
		return err
	}
	if list == nil {
		list = []dispenser.Distribution{}
	}
	return utils.WriteJSON(w, list)
}

func (d *Distributions) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := parseID(req)
	if err != nil {
		return err
	}
	dist, err := d.dispenser.Get(id)
	if err != nil {
		if burn.IsValidation(err) {
			return utils.HTTPError(err, http.StatusNotFound)
		}
		return err
	}
	return utils.WriteJSON(w, dist)
}

func (d *Distributions) handleCreate(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	var body CreateRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	start := dispenser.Start{Kind: dispenser.AtTickDelay, Delay: body.StartDelay}
	if body.StartAtTrigger {
		start = dispenser.Start{Kind: dispenser.AtTrigger}
	}
	id, err := d.dispenser.Create(caller, dispenser.CreateRequest{
		Name:          body.Name,
		Qty:           body.Qty,
		Start:         start,
		DurationTicks: body.DurationTicks,
		Hidden:        body.Hidden,
		Bonfire:       body.Bonfire,
	})
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &CreateResponse{ID: id})
}

func (d *Distributions) handleCancel(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	id, err := parseID(req)
	if err != nil {
		return err
	}
	if err := d.dispenser.Cancel(caller, id); err != nil {
		return err
	}
	dist, err := d.dispenser.Get(id)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, dist)
}

func (d *Distributions) handleWithdraw(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	id, err := parseID(req)
	if err != nil {
		return err
	}
	var body AmountRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	receipt, err := xfer.Settle(req.Context(), d.transferer,
		func() (xfer.Transfer, error) {
			if err := d.dispenser.WithdrawCanceled(caller, id, body.Amount); err != nil {
				return xfer.Transfer{}, err
			}
			return xfer.Transfer{Token: Token, To: caller, Amount: body.Amount, Memo: "withdraw " + strconv.FormatUint(id, 10)}, nil
		},
		func(t xfer.Transfer) error {
			return d.dispenser.RevertWithdrawCanceled(caller, id, t.Amount)
		})
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, receipt)
}

func (d *Distributions) handleClaim(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	var body AmountRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	receipt, err := xfer.Settle(req.Context(), d.transferer,
		func() (xfer.Transfer, error) {
			if err := d.dispenser.ClaimTokens(caller, body.Amount); err != nil {
				return xfer.Transfer{}, err
			}
			return xfer.Transfer{Token: Token, To: caller, Amount: body.Amount, Memo: "token claim"}, nil
		},
		func(t xfer.Transfer) error {
			return d.dispenser.RevertClaimTokens(caller, t.Amount)
		})
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, receipt)
}

func (d *Distributions) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/totals").
		Methods(http.MethodGet).
		Name("GET /distributions/totals").
		HandlerFunc(utils.WrapHandlerFunc(d.handleGetTotals))
	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /distributions").
		HandlerFunc(utils.WrapHandlerFunc(d.handleList))
	sub.Path("").
		Methods(http.MethodPost).
		Name("POST /distributions").
		HandlerFunc(utils.WrapHandlerFunc(d.handleCreate))
	sub.Path("/claim").
		Methods(http.MethodPost).
		Name("POST /distributions/claim").
		HandlerFunc(utils.WrapHandlerFunc(d.handleClaim))
	sub.Path("/{id:[0-9]+}").
		Methods(http.MethodGet).
		Name("GET /distributions/{id}").
		HandlerFunc(utils.WrapHandlerFunc(d.handleGet))
	sub.Path("/{id:[0-9]+}/cancel").
		Methods(http.MethodPost).
		Name("POST /distributions/{id}/cancel").
		HandlerFunc(utils.WrapHandlerFunc(d.handleCancel))
	sub.Path("/{id:[0-9]+}/withdraw").
		Methods(http.MethodPost).
		Name("POST /distributions/{id}/withdraw").
		HandlerFunc(utils.WrapHandlerFunc(d.handleWithdraw))
}

type CreateRequest struct {
	Name           string       `json:"name"`
	Qty            *uint256.Int `json:"qty"`
	DurationTicks  uint64       `json:"durationTicks"`
	StartDelay     uint64       `json:"startDelayTicks"`
	StartAtTrigger bool         `json:"startAtTrigger"`
	Hidden         bool         `json:"hidden"`
	Bonfire        bool         `json:"distributeToBonfire"`
}

type CreateResponse struct {
	ID uint64 `json:"id"`
}

type AmountRequest struct {
	Amount *uint256.Int `json:"amount"`
}
