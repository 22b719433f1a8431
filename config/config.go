// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package config loads the optional YAML config file of burnpool.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vechain/burnpool/burn"
)

// maxTokenDecimals keeps quantities scaled by a token within 256 bits.
const maxTokenDecimals = 36

type Config struct {
	DataDir   string    `yaml:"data-dir"`
	BatchSize int       `yaml:"batch-size"`
	API       API       `yaml:"api"`
	Metrics   Metrics   `yaml:"metrics"`
	Ledger    Ledger    `yaml:"ledger"`
	Raffle    Raffle    `yaml:"raffle"`
	Dispenser Dispenser `yaml:"dispenser"`
	XRate     XRate     `yaml:"xrate"`
	Solo      Solo      `yaml:"solo"`
}

type API struct {
	Addr      string `yaml:"addr"`
	AdminAddr string `yaml:"admin-addr"`
	CORS      string `yaml:"cors"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type Ledger struct {
	Fee              string        `yaml:"fee"` // shares, 12 decimals
	RoundDelay       time.Duration `yaml:"round-delay"`
	KamikazeLifespan time.Duration `yaml:"kamikaze-lifespan"`
	RatePair         string        `yaml:"rate-pair"`
}

type Raffle struct {
	SlotCap     string        `yaml:"slot-cap"` // reward tokens, 8 decimals
	RoundDelay  time.Duration `yaml:"round-delay"`
	Calendar    string        `yaml:"calendar"` // cron spec, overrides round-delay
	FundPercent uint64        `yaml:"fund-percent"`
	BurnToken   Token         `yaml:"burn-token"` // pledged at a discount, grants voting power
	Tokens      []Token       `yaml:"tokens"`     // candidates of the token vote
}

// Token is a pledgeable token quoted on Pair.
type Token struct {
	ID       string `yaml:"id"`
	Pair     string `yaml:"pair"`
	Decimals uint8  `yaml:"decimals"`
}

type Dispenser struct {
	TokenFee  string        `yaml:"token-fee"`
	TickDelay time.Duration `yaml:"tick-delay"`
}

type XRate struct {
	URL     string        `yaml:"url"`
	Static  string        `yaml:"static"` // pair=rate,...
	TTL     time.Duration `yaml:"ttl"`
	Refresh string        `yaml:"refresh"` // cron spec
}

type Solo struct {
	TransferDB string `yaml:"transfer-db"`
	Treasury   string `yaml:"treasury"` // raffle treasury balance, reward tokens, empty for none
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BatchSize: burn.DefaultBatchSize,
		API: API{
			Addr:      "localhost:8680",
			AdminAddr: "localhost:2113",
		},
		Metrics: Metrics{Addr: "localhost:2112"},
		Ledger: Ledger{
			Fee:              burn.FormatUnits(burn.PoSRoundFee, burn.ShareDecimals),
			RoundDelay:       burn.PoSRoundDelay,
			KamikazeLifespan: burn.KamikazeLifespan,
			RatePair:         "asset/share",
		},
		Raffle: Raffle{
			SlotCap:     burn.FormatUnits(burn.RaffleSlotCap, burn.RewardDecimals),
			RoundDelay:  burn.RaffleRoundDelay,
			FundPercent: burn.RaffleFundPercent,
			BurnToken:   Token{ID: "burn", Pair: "burn/usd", Decimals: burn.RewardDecimals},
		},
		Dispenser: Dispenser{
			TokenFee:  burn.DispenserTokenFee.Dec(),
			TickDelay: burn.DispenserTickDelay,
		},
		XRate: XRate{
			TTL:     10 * time.Minute,
			Refresh: "@every 5m",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return errors.New("batch-size must be positive")
	case c.Ledger.RoundDelay <= 0:
		return errors.New("ledger.round-delay must be positive")
	case c.Ledger.KamikazeLifespan <= 0:
		return errors.New("ledger.kamikaze-lifespan must be positive")
	case c.Raffle.RoundDelay <= 0 && c.Raffle.Calendar == "":
		return errors.New("raffle needs a round-delay or a calendar")
	case c.Raffle.FundPercent == 0 || c.Raffle.FundPercent > 100:
		return errors.New("raffle.fund-percent must be within 1..100")
	case c.Dispenser.TickDelay <= 0:
		return errors.New("dispenser.tick-delay must be positive")
	}
	if _, err := burn.ParseUnits(c.Ledger.Fee, burn.ShareDecimals); err != nil {
		return errors.WithMessage(err, "ledger.fee")
	}
	if _, err := burn.ParseUnits(c.Raffle.SlotCap, burn.RewardDecimals); err != nil {
		return errors.WithMessage(err, "raffle.slot-cap")
	}
	if _, err := burn.ParseUnits(c.Dispenser.TokenFee, 0); err != nil {
		return errors.WithMessage(err, "dispenser.token-fee")
	}
	if err := c.Raffle.validateTokens(); err != nil {
		return err
	}
	if c.Solo.Treasury != "" {
		if _, err := burn.ParseUnits(c.Solo.Treasury, burn.RewardDecimals); err != nil {
			return errors.WithMessage(err, "solo.treasury")
		}
	}
	return nil
}

func (r *Raffle) validateTokens() error {
	seen := make(map[string]bool, len(r.Tokens)+1)
	for i, t := range append([]Token{r.BurnToken}, r.Tokens...) {
		name := "raffle.burn-token"
		if i > 0 {
			name = fmt.Sprintf("raffle.tokens[%d]", i-1)
		}
		switch {
		case t.ID == "" || t.Pair == "":
			return errors.Errorf("%s needs an id and a pair", name)
		case t.Decimals > maxTokenDecimals:
			return errors.Errorf("%s.decimals must be at most %d", name, maxTokenDecimals)
		case seen[t.ID]:
			return errors.Errorf("%s: duplicate token %q", name, t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}
