// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/config"
	"github.com/vechain/burnpool/dispenser"
	"github.com/vechain/burnpool/ledger"
	"github.com/vechain/burnpool/raffle"
)

// commonPool weighs eligible ledger positions by share. Ineligible ones weigh zero and
// are skipped by the dispenser.
func commonPool(l *ledger.Ledger) dispenser.Pool {
	return dispenser.PoolFunc(func(start *burn.Address, take int) ([]dispenser.Member, error) {
		entries, err := l.Entries(start, take)
		if err != nil {
			return nil, err
		}
		members := make([]dispenser.Member, 0, len(entries))
		for _, e := range entries {
			w := burn.Zero()
			if e.Eligible {
				w = e.Share
			}
			members = append(members, dispenser.Member{Owner: e.Owner, Weight: w})
		}
		return members, nil
	})
}

func kamikazePool(l *ledger.Ledger) dispenser.Pool {
	return dispenser.PoolFunc(func(start *burn.Address, take int) ([]dispenser.Member, error) {
		entries, err := l.Kamikazes(start, take)
		if err != nil {
			return nil, err
		}
		members := make([]dispenser.Member, 0, len(entries))
		for _, e := range entries {
			members = append(members, dispenser.Member{Owner: e.Owner, Weight: e.Share})
		}
		return members, nil
	})
}

// bonfirePool weighs raffle entrants of the current round.
func bonfirePool(e *raffle.Engine) dispenser.Pool {
	return dispenser.PoolFunc(func(start *burn.Address, take int) ([]dispenser.Member, error) {
		entries, err := e.Entries(start, take)
		if err != nil {
			return nil, err
		}
		members := make([]dispenser.Member, 0, len(entries))
		for _, en := range entries {
			members = append(members, dispenser.Member{Owner: en.Owner, Weight: en.Weight})
		}
		return members, nil
	})
}

// fixedTreasury is the raffle treasury of solo mode.
type fixedTreasury struct {
	balance *uint256.Int
}

func (t fixedTreasury) Balance(context.Context) (*uint256.Int, error) {
	return new(uint256.Int).Set(t.balance), nil
}

func raffleToken(t config.Token) raffle.Token {
	return raffle.Token{ID: t.ID, Pair: t.Pair, Decimals: t.Decimals}
}

func raffleTokens(ts []config.Token) []raffle.Token {
	out := make([]raffle.Token, 0, len(ts))
	for _, t := range ts {
		out = append(out, raffleToken(t))
	}
	return out
}
