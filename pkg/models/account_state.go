package models

// AccountBalanceKey identifies one user's holding of one token.
type AccountBalanceKey struct {
	User    Address
	TokenId TokenId
}

// AccountState is the canonical per-batch balance snapshot the driver hands to the
// price finder: current_balance(user, token) for every (user, token) pair that some
// replayed event has touched and whose token is registered; zero balances are
// included.
type AccountState map[AccountBalanceKey]Amount
