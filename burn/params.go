// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package burn

import (
	"time"

	"github.com/holiman/uint256"
)

// Protocol constants.
const (
	PoSRoundsPerHalving uint64 = 5040 // rounds between two reward halvings
	DefaultBatchSize           = 300  // entries processed per batch step

	PoSRoundDelay      = 2 * time.Minute
	PoSRoundDelayLimit = 2 * 24 * time.Hour
	KamikazeLifespan   = 24 * time.Hour
	RaffleRoundDelay   = 7 * 24 * time.Hour
	DispenserTickDelay = time.Hour

	RaffleFundPercent = 85 // share of the raffle treasury balance paid out per round
	MaxTickDelay      = 720
)

// Domain tags of the seed chains.
var (
	LedgerSeedDomain    = []byte("msq-burn-burner-update-seed")
	RaffleSeedDomain    = []byte("msq-burn-furnace-update-seed")
	DispenserSeedDomain = []byte("msq-burn-dispenser-update-seed")
)

var (
	// InitialRoundReward 1024 reward tokens per round.
	InitialRoundReward = Units(1024, RewardDecimals)
	// RoundRewardFloor the reward is not halved below one token.
	RoundRewardFloor = Units(1, RewardDecimals)
	// PoSRoundFee shares burned from each eligible position per round.
	PoSRoundFee = uint256.NewInt(10_000_000_000)
	// RaffleSlotCap the largest amount a single prize slot grows by per loop.
	RaffleSlotCap = Units(1000, RewardDecimals)
	// DefaultExchangeRate assumed asset to share rate (shares per asset unit, 8 decimals)
	// until a feed answers.
	DefaultExchangeRate = Units(1, RewardDecimals)
	// DispenserTokenFee the transfer fee of the dispensed token; distributions with less left are complete.
	DispenserTokenFee = uint256.NewInt(10_000)
)
