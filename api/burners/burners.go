// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package burners

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/ledger"
	"github.com/vechain/burnpool/xfer"
)

// RewardToken names the token ledger rewards are paid in.
const RewardToken = "reward"

type Burners struct {
	ledger     *ledger.Ledger
	transferer xfer.Transferer
	pageLimit  int
}

func New(l *ledger.Ledger, transferer xfer.Transferer, pageLimit int) *Burners {
	return &Burners{
		ledger:     l,
		transferer: transferer,
		pageLimit:  pageLimit,
	}
}

func (b *Burners) handleGetTotals(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.OptionalCaller(req)
	if err != nil {
		return err
	}
	totals, err := b.ledger.Totals(caller)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, totals)
}

func (b *Burners) handleGetEntries(w http.ResponseWriter, req *http.Request) error {
	start, take, err := b.page(req)
	if err != nil {
		return err
	}
	entries, err := b.ledger.Entries(start, take)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return utils.WriteJSON(w, entries)
}

func (b *Burners) handleGetKamikazes(w http.ResponseWriter, req *http.Request) error {
	start, take, err := b.page(req)
	if err != nil {
		return err
	}
	entries, err := b.ledger.Kamikazes(start, take)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []ledger.KamikazeEntry{}
	}
	return utils.WriteJSON(w, entries)
}

func (b *Burners) page(req *http.Request) (*burn.Address, int, error) {
	query := req.URL.Query()
	start, err := utils.ParseAddress(query.Get("start"))
	if err != nil {
		return nil, 0, errors.WithMessage(err, "start")
	}
	take, err := utils.ParseTake(query.Get("take"), b.pageLimit)
	if err != nil {
		return nil, 0, err
	}
	return start, take, nil
}

func (b *Burners) handleStake(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	var body StakeRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	shares, err := b.ledger.Stake(req.Context(), caller, body.Amount, body.Kamikaze)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &StakeResponse{Shares: shares})
}

func (b *Burners) handleClaim(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	receipt, err := xfer.Settle(req.Context(), b.transferer,
		func() (xfer.Transfer, error) {
			amount, err := b.ledger.ClaimReward(caller)
			if err != nil {
				return xfer.Transfer{}, err
			}
			return xfer.Transfer{Token: RewardToken, To: caller, Amount: amount, Memo: "reward claim"}, nil
		},
		func(t xfer.Transfer) error {
			return b.ledger.RevertClaim(t.To, t.Amount)
		})
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, receipt)
}

func (b *Burners) handleMigrate(w http.ResponseWriter, req *http.Request) error {
	caller, err := utils.Caller(req)
	if err != nil {
		return err
	}
	var body MigrateRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if body.To == nil {
		return utils.BadRequest(errors.New("to: required"))
	}
	if err := b.ledger.Migrate(caller, *body.To); err != nil {
		return err
	}
	return b.handleGetTotalsOf(w, *body.To)
}

func (b *Burners) handleGetTotalsOf(w http.ResponseWriter, owner burn.Address) error {
	totals, err := b.ledger.Totals(owner)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, totals)
}

func (b *Burners) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/totals").
		Methods(http.MethodGet).
		Name("GET /burners/totals").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetTotals))
	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /burners").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetEntries))
	sub.Path("/kamikazes").
		Methods(http.MethodGet).
		Name("GET /burners/kamikazes").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetKamikazes))
	sub.Path("/stake").
		Methods(http.MethodPost).
		Name("POST /burners/stake").
		HandlerFunc(utils.WrapHandlerFunc(b.handleStake))
	sub.Path("/claim").
		Methods(http.MethodPost).
		Name("POST /burners/claim").
		HandlerFunc(utils.WrapHandlerFunc(b.handleClaim))
	sub.Path("/migrate").
		Methods(http.MethodPost).
		Name("POST /burners/migrate").
		HandlerFunc(utils.WrapHandlerFunc(b.handleMigrate))
}

type StakeRequest struct {
	Amount   *uint256.Int `json:"amount"`
	Kamikaze bool         `json:"kamikaze"`
}

type StakeResponse struct {
	Shares *uint256.Int `json:"shares"`
}

type MigrateRequest struct {
	To *burn.Address `json:"to"`
}
