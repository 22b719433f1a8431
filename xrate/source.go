// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package xrate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/burn"
)

// Source answers exchange rates with 8 decimals.
type Source interface {
	Rate(ctx context.Context, pair string) (*uint256.Int, error)
}

// SourceFunc implements Source.
type SourceFunc func(ctx context.Context, pair string) (*uint256.Int, error)

// Rate implements Source.
func (f SourceFunc) Rate(ctx context.Context, pair string) (*uint256.Int, error) { return f(ctx, pair) }

// Static serves fixed rates.
type Static map[string]*uint256.Int

// Rate implements Source.
func (s Static) Rate(_ context.Context, pair string) (*uint256.Int, error) {
	v, ok := s[pair]
	if !ok {
		return nil, errors.Errorf("no rate for %q", pair)
	}
	return new(uint256.Int).Set(v), nil
}

// ParseStatic parses "pair=rate" items separated by commas, e.g. "icp/cycles=1.5".
func ParseStatic(s string) (Static, error) {
	out := Static{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pair, rate, ok := strings.Cut(item, "=")
		if !ok {
			return nil, errors.Errorf("invalid rate %q, want pair=rate", item)
		}
		v, err := burn.ParseUnits(strings.TrimSpace(rate), burn.RewardDecimals)
		if err != nil {
			return nil, errors.WithMessagef(err, "rate of %q", pair)
		}
		out[strings.TrimSpace(pair)] = v
	}
	return out, nil
}

// HTTPSource fetches GET <base>/<pair> answering {"rate": "1.23456789"}.
type HTTPSource struct {
	base   string
	client *http.Client
}

// NewHTTPSource returns a source querying base.
func NewHTTPSource(base string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

type rateResponse struct {
	Rate string `json:"rate"`
}

// Rate implements Source.
func (s *HTTPSource) Rate(ctx context.Context, pair string) (*uint256.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/"+url.PathEscape(pair), nil)
	if err != nil {
		return nil, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("rate of %q: unexpected status %s", pair, res.Status)
	}
	var body rateResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode rate")
	}
	return burn.ParseUnits(body.Rate, burn.RewardDecimals)
}
