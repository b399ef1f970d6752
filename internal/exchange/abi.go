package exchange

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// batchExchangeABI covers the subset of BatchExchange's interface the driver calls:
// the two read views it polls every batch, submitSolution, and the events the
// orderbook state machine folds. Grounded on the original's contracts/stablex_contract.rs
// (ethcontract-generated BatchExchange bindings, method names getCurrentBatchId,
// getSecondsRemainingInBatch, submitSolution) and core/src/contracts/stablex_contract.rs's
// auction element / event layout.
const batchExchangeABI = `[
	{
		"type": "function",
		"name": "getCurrentBatchId",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint32"}]
	},
	{
		"type": "function",
		"name": "getSecondsRemainingInBatch",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "submitSolution",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "batchIndex", "type": "uint32"},
			{"name": "claimedObjectiveValue", "type": "uint256"},
			{"name": "owners", "type": "address[]"},
			{"name": "orderIds", "type": "uint16[]"},
			{"name": "volumes", "type": "uint128[]"},
			{"name": "prices", "type": "uint128[]"},
			{"name": "tokenIdsForPrice", "type": "uint16[]"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "event",
		"name": "Deposit",
		"inputs": [
			{"name": "user", "type": "address", "indexed": true},
			{"name": "token", "type": "address", "indexed": true},
			{"name": "amount", "type": "uint256", "indexed": false},
			{"name": "batchId", "type": "uint32", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "WithdrawRequest",
		"inputs": [
			{"name": "user", "type": "address", "indexed": true},
			{"name": "token", "type": "address", "indexed": true},
			{"name": "amount", "type": "uint256", "indexed": false},
			{"name": "batchId", "type": "uint32", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "Withdraw",
		"inputs": [
			{"name": "user", "type": "address", "indexed": true},
			{"name": "token", "type": "address", "indexed": true},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "TokenListing",
		"inputs": [
			{"name": "token", "type": "address", "indexed": false},
			{"name": "id", "type": "uint16", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "OrderPlacement",
		"inputs": [
			{"name": "owner", "type": "address", "indexed": true},
			{"name": "index", "type": "uint16", "indexed": false},
			{"name": "buyToken", "type": "uint16", "indexed": false},
			{"name": "sellToken", "type": "uint16", "indexed": false},
			{"name": "validFrom", "type": "uint32", "indexed": false},
			{"name": "validUntil", "type": "uint32", "indexed": false},
			{"name": "priceNumerator", "type": "uint128", "indexed": false},
			{"name": "priceDenominator", "type": "uint128", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "OrderCancellation",
		"inputs": [
			{"name": "owner", "type": "address", "indexed": true},
			{"name": "id", "type": "uint16", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "OrderDeletion",
		"inputs": [
			{"name": "owner", "type": "address", "indexed": true},
			{"name": "id", "type": "uint16", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "Trade",
		"inputs": [
			{"name": "owner", "type": "address", "indexed": true},
			{"name": "orderId", "type": "uint16", "indexed": false},
			{"name": "sellToken", "type": "uint16", "indexed": false},
			{"name": "buyToken", "type": "uint16", "indexed": false},
			{"name": "executedSellAmount", "type": "uint128", "indexed": false},
			{"name": "executedBuyAmount", "type": "uint128", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "TradeReversion",
		"inputs": [
			{"name": "owner", "type": "address", "indexed": true},
			{"name": "orderId", "type": "uint16", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "SolutionSubmission",
		"inputs": [
			{"name": "submitter", "type": "address", "indexed": true},
			{"name": "burntFees", "type": "uint256", "indexed": false}
		]
	}
]`

func parsedBatchExchangeABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(batchExchangeABI))
}
