// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package raffle

import (
	"slices"
	"strings"

	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/kv"
	"github.com/vechain/burnpool/record"
	"github.com/vechain/burnpool/seed"
	"github.com/vechain/burnpool/selector"
)

// BurnPledgePercent is the share of its value a burn token pledge weighs in the raffle
// and in the vote for the next round's token.
const BurnPledgePercent = 95

var (
	// DefaultBurnToken is pledged at a discount and elected when nobody votes.
	DefaultBurnToken = Token{ID: "burn", Pair: "burn/usd", Decimals: burn.RewardDecimals}

	tallyBucket = kv.Bucket("ra")
	voteBucket  = kv.Bucket("rv")
	weightOne   = burn.Pow10(burn.RewardDecimals)
)

// Token is a pledgeable token. Pair is quoted by the Rater in weight units.
type Token struct {
	ID       string `json:"id"`
	Pair     string `json:"pair"`
	Decimals uint8  `json:"decimals"`
}

// Preference is the share of a voter's power given to a token, a fraction with 8 decimals.
type Preference struct {
	Token  string       `json:"token"`
	Weight *uint256.Int `json:"weight"`
}

// Vote is the ballot an owner cast in the current round.
type Vote struct {
	Power       *uint256.Int `json:"power"`
	Preferences []Preference `json:"preferences"`
}

// Tally is the votes a token collected in the current round.
type Tally struct {
	Token string       `json:"token"`
	Votes *uint256.Int `json:"votes"`
}

type tally struct {
	Votes *uint256.Int
}

// WithTokens sets the burn token and the tokens that can be voted for. The burn token
// is always votable.
func WithTokens(burnToken Token, votable ...Token) Option {
	return func(e *Engine) {
		e.burnToken = burnToken
		e.tokens = map[string]Token{burnToken.ID: burnToken}
		for _, t := range votable {
			e.tokens[t.ID] = t
		}
	}
}

// Tokens returns the token of the current round, the burn token and the votable tokens.
func (e *Engine) Tokens() (current Token, burnToken Token, votable []Token, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		return Token{}, Token{}, nil, err
	}
	for _, t := range e.tokens {
		votable = append(votable, t)
	}
	slices.SortFunc(votable, func(a, b Token) int { return strings.Compare(a.ID, b.ID) })
	return e.currentToken(info), e.burnToken, votable, nil
}

func (e *Engine) currentToken(info *Info) Token {
	if t, ok := e.tokens[info.Token]; ok {
		return t
	}
	return e.burnToken
}

// pledgeToken resolves the token of a pledge and reports whether it grants voting power.
func (e *Engine) pledgeToken(info *Info, id string) (Token, bool, error) {
	switch cur := e.currentToken(info); id {
	case e.burnToken.ID:
		return e.burnToken, true, nil
	case cur.ID:
		return cur, false, nil
	default:
		return Token{}, false, burn.NewValidationError("token %q is not pledgeable in round %d, use %q or %q",
			id, info.Round, cur.ID, e.burnToken.ID)
	}
}

// Vote spreads the owner's voting power of the round over votable tokens. The weights must
// add up to one and an owner votes once per round.
func (e *Engine) Vote(owner burn.Address, prefs []Preference) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		return err
	}
	switch {
	case info.Stopped:
		return &burn.StoppedError{Engine: Name}
	case info.drawing():
		return burn.NewValidationError("round %d is being drawn, voting is closed", info.Round)
	}
	if err := e.checkPreferences(prefs); err != nil {
		return err
	}

	var pos Position
	if _, err := record.Get(e.positions, owner.Bytes(), &pos); err != nil {
		return err
	}
	pos.normalize()
	if pos.Power.IsZero() {
		return burn.NewValidationError("no voting power, pledge the burn token first")
	}
	voted, err := e.votes.Has(owner.Bytes())
	if err != nil {
		return err
	}
	if voted {
		return burn.NewValidationError("already voted in round %d", info.Round)
	}

	add := make([]tally, len(prefs))
	for i, p := range prefs {
		var t tally
		if _, err := record.Get(e.tallies, []byte(p.Token), &t); err != nil {
			return err
		}
		votes, _ := burn.MulDiv(pos.Power, p.Weight, weightOne)
		add[i] = tally{new(uint256.Int).Add(burn.OrZero(t.Votes), votes)}
	}
	err = e.db.Batch(func(b kv.Putter) error {
		tp := tallyBucket.NewPutter(b)
		for i, p := range prefs {
			if err := record.Put(tp, []byte(p.Token), &add[i]); err != nil {
				return err
			}
		}
		return record.Put(voteBucket.NewPutter(b), owner.Bytes(), &Vote{Power: pos.Power, Preferences: prefs})
	})
	if err != nil {
		return err
	}
	metricVotes().Add(1)
	logger.Debug("token vote cast", "round", info.Round, "owner", owner, "power", burn.FormatUnits(pos.Power, burn.RewardDecimals))
	return nil
}

func (e *Engine) checkPreferences(prefs []Preference) error {
	if len(prefs) == 0 {
		return burn.NewValidationError("vote for at least one token")
	}
	sum := burn.Zero()
	seen := make(map[string]bool, len(prefs))
	for _, p := range prefs {
		if _, ok := e.tokens[p.Token]; !ok {
			return burn.NewValidationError("token %q can not be voted for", p.Token)
		}
		if seen[p.Token] {
			return burn.NewValidationError("token %q is listed twice", p.Token)
		}
		seen[p.Token] = true
		if p.Weight == nil || p.Weight.IsZero() {
			return burn.NewValidationError("weight of %q must be positive", p.Token)
		}
		if _, overflow := sum.AddOverflow(sum, p.Weight); overflow {
			return burn.NewValidationError("weights overflow")
		}
	}
	if !sum.Eq(weightOne) {
		return burn.NewValidationError("weights add up to %s, want 1", burn.FormatUnits(sum, burn.RewardDecimals))
	}
	return nil
}

// VoteOf returns the owner's ballot of the current round, nil when none was cast.
func (e *Engine) VoteOf(owner burn.Address) (*Vote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var v Vote
	found, err := record.Get(e.votes, owner.Bytes(), &v)
	if err != nil || !found {
		return nil, err
	}
	v.Power = burn.OrZero(v.Power)
	return &v, nil
}

// Tallies returns the votes of the current round in token order.
func (e *Engine) Tallies() ([]Tally, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadTallies()
}

func (e *Engine) loadTallies() ([]Tally, error) {
	var (
		out    []Tally
		decErr error
	)
	err := e.tallies.Iterate(kv.Range{}, func(pair kv.Pair) bool {
		var t tally
		if decErr = record.Decode(pair.Value(), &t); decErr != nil {
			return false
		}
		out = append(out, Tally{Token: string(pair.Key()), Votes: burn.OrZero(t.Votes)})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// elect draws the token of the next round, weighted by the tallies, and clears them.
// Without votes the burn token is elected.
func (e *Engine) elect(p kv.Putter, info *Info, chain *seed.Chain) (Token, error) {
	tallies, err := e.loadTallies()
	if err != nil {
		return Token{}, err
	}
	total := burn.Zero()
	for _, t := range tallies {
		total.Add(total, t.Votes)
	}

	elected := e.burnToken
	if !total.IsZero() {
		var (
			draw    selector.Draw
			counter = burn.Zero()
		)
		draw.Start(chain.Fractions(1)[0], total)
		for _, t := range tallies {
			var won bool
			if counter, won = draw.Add(counter, t.Votes); won {
				if tok, ok := e.tokens[t.Token]; ok {
					elected = tok
				} else {
					logger.Warn("elected token is no longer votable", "round", info.Round, "token", t.Token)
				}
				break
			}
		}
	}

	tp := tallyBucket.NewPutter(p)
	for _, t := range tallies {
		if err := tp.Delete([]byte(t.Token)); err != nil {
			return Token{}, err
		}
	}
	return elected, nil
}
