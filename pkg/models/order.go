package models

import "math/big"

// Order is a standing offer to sell up to (price_denominator - used_amount) units of
// SellToken for BuyToken at the limit price PriceNumerator/PriceDenominator, valid for
// the batch range [ValidFrom, ValidUntil].
type Order struct {
	Id               OrderId
	User             Address
	BuyToken         TokenId
	SellToken        TokenId
	PriceNumerator   Amount
	PriceDenominator Amount
	ValidFrom        BatchId
	ValidUntil       BatchId
	UsedAmount       Amount
}

// IsValidInBatch reports whether the order accepts execution in batch b.
func (o *Order) IsValidInBatch(b BatchId) bool {
	return o.ValidFrom <= b && b <= o.ValidUntil
}

// HasLimitedAmount reports whether the order is decremented as it fills, i.e. it is not
// using the MaxU128/MaxU128 sentinel that marks an order of unlimited size.
func (o *Order) HasLimitedAmount() bool {
	return o.PriceNumerator.Cmp(MaxU128) != 0 && o.PriceDenominator.Cmp(MaxU128) != 0
}

// RemainingSellAmount is the denominator minus whatever of it has already been used.
func (o *Order) RemainingSellAmount() Amount {
	return new(big.Int).Sub(o.PriceDenominator, o.UsedAmount)
}

// ComputeBuySellAmounts derives the (buy, sell) amounts a display of this order would
// show at its current fill level: sell is simply what remains of the denominator, and
// buy is the proportional amount at the order's limit price, floored.
//
//	buy  = floor(price_numerator * remaining_sell / price_denominator)
//	sell = remaining_sell
func ComputeBuySellAmounts(priceNumerator, priceDenominator, remainingSell Amount) (buy, sell Amount) {
	if priceDenominator.Sign() == 0 {
		return new(big.Int), new(big.Int).Set(remainingSell)
	}
	buy = new(big.Int).Mul(priceNumerator, remainingSell)
	buy.Div(buy, priceDenominator)
	sell = new(big.Int).Set(remainingSell)
	return buy, sell
}

// TokenRegistry is the bidirectional map between exchange-local TokenId and the
// token's contract Address. Tokens may accumulate deposits before being registered.
type TokenRegistry struct {
	idToAddress map[TokenId]Address
	addressToId map[Address]TokenId
}

// NewTokenRegistry constructs an empty registry.
func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{
		idToAddress: make(map[TokenId]Address),
		addressToId: make(map[Address]TokenId),
	}
}

// Register associates id with address. Re-registering the same id overwrites the
// previous address mapping (the contract never re-emits TokenListing for an id, but
// replaying from genesis must stay idempotent under duplicate event delivery).
func (r *TokenRegistry) Register(id TokenId, address Address) {
	if old, ok := r.idToAddress[id]; ok {
		delete(r.addressToId, old)
	}
	r.idToAddress[id] = address
	r.addressToId[address] = id
}

// AddressOf returns the address registered for id, if any.
func (r *TokenRegistry) AddressOf(id TokenId) (Address, bool) {
	a, ok := r.idToAddress[id]
	return a, ok
}

// IdOf returns the id registered for address, if any.
func (r *TokenRegistry) IdOf(address Address) (TokenId, bool) {
	id, ok := r.addressToId[address]
	return id, ok
}

// HasFeeToken reports whether token id 0 has been registered; solutions cannot be
// accepted until it has.
func (r *TokenRegistry) HasFeeToken() bool {
	_, ok := r.idToAddress[FeeTokenId]
	return ok
}

// Clone returns a deep copy, used by the orderbook state machine to keep replay
// snapshots independent of the live registry.
func (r *TokenRegistry) Clone() *TokenRegistry {
	out := NewTokenRegistry()
	for id, addr := range r.idToAddress {
		out.idToAddress[id] = addr
		out.addressToId[addr] = id
	}
	return out
}
