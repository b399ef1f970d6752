// Package models holds the data types shared across the driver: batch/token/order
// identifiers, orders, balances, events and solutions. It mirrors how the exchange
// contract itself models these concepts, since the driver must emulate exactly what
// the contract does based on the events it emits.
package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BatchId identifies a five-minute settlement epoch. batch_id = floor(unix_ts / 300).
type BatchId uint32

// BatchDuration is the wall-clock length of one batch.
const BatchDuration = 300 // seconds

// TokenId is the exchange-local identifier assigned to a registered token address.
// TokenId 0 is always the fee token.
type TokenId uint16

// FeeTokenId is the token id reserved for the exchange's fee token.
const FeeTokenId TokenId = 0

// OrderId identifies an order within a single user's order list.
type OrderId uint16

// Address is an Ethereum account or token address.
type Address = common.Address

// Amount is an unsigned 128-bit quantity, represented as an unbounded big.Int.
// Callers are responsible for keeping values within [0, 2^128).
type Amount = *big.Int

// Objective is the 256-bit unsigned scalar the contract reports for a solution's quality.
type Objective = *uint256.Int

// MaxU128 is the sentinel price numerator/denominator marking an order as "unlimited":
// such orders are not decremented as they are filled.
var MaxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// NewAmount constructs an Amount from a uint64, a convenience for tests and fixtures.
func NewAmount(v uint64) Amount {
	return new(big.Int).SetUint64(v)
}
