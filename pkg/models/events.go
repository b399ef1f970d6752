package models

import "github.com/ethereum/go-ethereum/common"

// EventKind discriminates the Event variants the exchange contract can emit.
type EventKind int

const (
	EventKindDeposit EventKind = iota
	EventKindWithdrawRequest
	EventKindWithdraw
	EventKindTokenListing
	EventKindOrderPlacement
	EventKindOrderCancellation
	EventKindOrderDeletion
	EventKindTrade
	EventKindTradeReversion
	EventKindSolutionSubmission
)

func (k EventKind) String() string {
	switch k {
	case EventKindDeposit:
		return "Deposit"
	case EventKindWithdrawRequest:
		return "WithdrawRequest"
	case EventKindWithdraw:
		return "Withdraw"
	case EventKindTokenListing:
		return "TokenListing"
	case EventKindOrderPlacement:
		return "OrderPlacement"
	case EventKindOrderCancellation:
		return "OrderCancellation"
	case EventKindOrderDeletion:
		return "OrderDeletion"
	case EventKindTrade:
		return "Trade"
	case EventKindTradeReversion:
		return "TradeReversion"
	case EventKindSolutionSubmission:
		return "SolutionSubmission"
	default:
		return "Unknown"
	}
}

// Event is a contract event, emulated by the orderbook state machine exactly as the
// contract itself would apply it.
type Event interface {
	Kind() EventKind
}

type Deposit struct {
	User    Address
	Token   Address
	Amount  Amount
	BatchId BatchId
}

func (Deposit) Kind() EventKind { return EventKindDeposit }

type WithdrawRequest struct {
	User    Address
	Token   Address
	Amount  Amount
	BatchId BatchId
}

func (WithdrawRequest) Kind() EventKind { return EventKindWithdrawRequest }

type Withdraw struct {
	User   Address
	Token  Address
	Amount Amount
}

func (Withdraw) Kind() EventKind { return EventKindWithdraw }

type TokenListing struct {
	Id      TokenId
	Address Address
}

func (TokenListing) Kind() EventKind { return EventKindTokenListing }

type OrderPlacement struct {
	Owner            Address
	Index            OrderId
	BuyToken         TokenId
	SellToken        TokenId
	ValidFrom        BatchId
	ValidUntil       BatchId
	PriceNumerator   Amount
	PriceDenominator Amount
}

func (OrderPlacement) Kind() EventKind { return EventKindOrderPlacement }

type OrderCancellation struct {
	Owner Address
	Id    OrderId
}

func (OrderCancellation) Kind() EventKind { return EventKindOrderCancellation }

type OrderDeletion struct {
	Owner Address
	Id    OrderId
}

func (OrderDeletion) Kind() EventKind { return EventKindOrderDeletion }

type Trade struct {
	Owner               Address
	OrderId             OrderId
	SellToken           TokenId
	BuyToken            TokenId
	ExecutedSellAmount  Amount
	ExecutedBuyAmount   Amount
}

func (Trade) Kind() EventKind { return EventKindTrade }

type TradeReversion struct {
	Owner   Address
	OrderId OrderId
}

func (TradeReversion) Kind() EventKind { return EventKindTradeReversion }

type SolutionSubmission struct {
	Submitter  Address
	BurntFees  Amount
}

func (SolutionSubmission) Kind() EventKind { return EventKindSolutionSubmission }

// BlockHash is re-exported for package boundaries that need it without importing
// go-ethereum directly (internal/eventlog's sort key).
type BlockHash = common.Hash
