// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package raffles

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/raffle"
	"github.com/vechain/burnpool/xfer"
)

// PrizeToken names the token prizes are paid in.
const PrizeToken = "prize"

type Raffles struct {
	engine     *raffle.Engine
	transferer xfer.Transferer
	pageLimit  int
}

func New(engine *raffle.Engine, transferer xfer.Transferer, pageLimit int) *Raffles {
	return &Raffles{
		engine:     engine,
		transferer: transferer,
		pageLimit:  pageLimit,
	}
}

func (r *Raffles) handleGetTotals(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.OptionalCaller(req)
	if err != nil {
		return err
	}
	totals, err := r.engine.Totals(caller)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, totals)
}

func (r *Raffles) handleGetEntries(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	start, err := utils.ParseAddress(query.Get("start"))
	if err != nil {
		return errors.WithMessage(err, "start")
	}
	take, err := utils.ParseTake(query.Get("take"), r.pageLimit)
	if err != nil {
		return err
	}
	entries, err := r.engine.Entries(start, take)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []raffle.Entry{}
	}
	return utils.WriteJSON(w, entries)
}

func (r *Raffles) handleGetHistory(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	before, err := utils.ParseUint(query.Get("before"))
	if err != nil {
		return errors.WithMessage(err, "before")
	}
	take, err := utils.ParseTake(query.Get("take"), r.pageLimit)
	if err != nil {
		return err
	}
	history, err := r.engine.History(before, take)
	if err != nil {
		return err
	}
	if history == nil {
		history = []raffle.HistoryEntry{}
	}
	return utils.WriteJSON(w, history)
}

func (r *Raffles) handlePledge(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	var body PledgeRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if body.Token == "" {
		return utils.BadRequest(errors.New("token: required"))
	}
	owner := caller
	if body.Owner != nil {
		owner = *body.Owner
	}
	weight, err := r.engine.Pledge(req.Context(), raffle.PledgeRequest{
		Owner:    owner,
		Token:    body.Token,
		Qty:      body.Amount,
		Downvote: body.Downvote,
	})
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &PledgeResponse{Weight: weight})
}

func (r *Raffles) handleVote(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	var body VoteRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := r.engine.Vote(caller, body.Preferences); err != nil {
		return err
	}
	vote, err := r.engine.VoteOf(caller)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, vote)
}

func (r *Raffles) handleGetVote(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	vote, err := r.engine.VoteOf(caller)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, vote)
}

func (r *Raffles) handleGetTokens(w http.ResponseWriter, _ *http.Request) error {
	current, burnToken, votable, err := r.engine.Tokens()
	if err != nil {
		return err
	}
	tallies, err := r.engine.Tallies()
	if err != nil {
		return err
	}
	if tallies == nil {
		tallies = []raffle.Tally{}
	}
	return utils.WriteJSON(w, &TokensResponse{
		Current: current,
		Burn:    burnToken,
		Votable: votable,
		Tallies: tallies,
	})
}

func (r *Raffles) handleClaim(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	round, err := strconv.ParseUint(mux.Vars(req)["round"], 10, 64)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "round"))
	}
	index, err := strconv.Atoi(mux.Vars(req)["index"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "index"))
	}
	receipt, err := xfer.Settle(req.Context(), r.transferer,
		func() (xfer.Transfer, error) {
			prize, err := r.engine.ClaimPrize(round, index, caller)
			if err != nil {
				return xfer.Transfer{}, err
			}
			return xfer.Transfer{
				Token:  PrizeToken,
				To:     caller,
				Amount: prize,
				Memo:   "prize " + strconv.FormatUint(round, 10) + "/" + strconv.Itoa(index),
			}, nil
		},
		func(xfer.Transfer) error {
			return r.engine.RevertPrizeClaim(round, index, caller)
		})
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, receipt)
}

func (r *Raffles) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/totals").
		Methods(http.MethodGet).
		Name("GET /raffles/totals").
		HandlerFunc(utils.WrapHandlerFunc(r.handleGetTotals))
	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /raffles").
		HandlerFunc(utils.WrapHandlerFunc(r.handleGetEntries))
	sub.Path("/history").
		Methods(http.MethodGet).
		Name("GET /raffles/history").
		HandlerFunc(utils.WrapHandlerFunc(r.handleGetHistory))
	sub.Path("/pledge").
		Methods(http.MethodPost).
		Name("POST /raffles/pledge").
		HandlerFunc(utils.WrapHandlerFunc(r.handlePledge))
	sub.Path("/vote").
		Methods(http.MethodPost).
		Name("POST /raffles/vote").
		HandlerFunc(utils.WrapHandlerFunc(r.handleVote))
	sub.Path("/vote").
		Methods(http.MethodGet).
		Name("GET /raffles/vote").
		HandlerFunc(utils.WrapHandlerFunc(r.handleGetVote))
	sub.Path("/tokens").
		Methods(http.MethodGet).
		Name("GET /raffles/tokens").
		HandlerFunc(utils.WrapHandlerFunc(r.handleGetTokens))
	sub.Path("/history/{round:[0-9]+}/winners/{index:[0-9]+}/claim").
		Methods(http.MethodPost).
		Name("POST /raffles/history/{round}/winners/{index}/claim").
		HandlerFunc(utils.WrapHandlerFunc(r.handleClaim))
}

// PledgeRequest pledges onto the caller's entry unless Owner is set.
type PledgeRequest struct {
	Token    string        `json:"token"`
	Amount   *uint256.Int  `json:"amount"`
	Owner    *burn.Address `json:"owner,omitempty"`
	Downvote bool          `json:"downvote,omitempty"`
}

type PledgeResponse struct {
	Weight *uint256.Int `json:"weight"`
}

type VoteRequest struct {
	Preferences []raffle.Preference `json:"preferences"`
}

type TokensResponse struct {
	Current raffle.Token   `json:"current"`
	Burn    raffle.Token   `json:"burn"`
	Votable []raffle.Token `json:"votable"`
	Tallies []raffle.Tally `json:"tallies"`
}
