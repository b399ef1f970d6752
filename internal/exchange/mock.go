package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gnosis/dex-driver/pkg/models"
)

// MockClient is an in-memory Client used by the internal/solution and
// internal/submission unit tests; every method is driven by
// fields/funcs a test sets up beforehand rather than a live node.
type MockClient struct {
	mu sync.Mutex

	AuctionIndex     models.BatchId
	SecondsRemaining time.Duration
	LastBlock        uint64
	Nonce            Nonce
	PastEventsResult []EventBatch

	SimulateFunc func(batch models.BatchId, solution models.Solution, atBlock uint64) (models.Objective, error)
	SubmitFunc   func(batch models.BatchId, solution models.Solution, claimedObjective models.Objective, gasPrice decimal.Decimal, nonce Nonce) (TxResult, error)
	NoopFunc     func(gasPrice decimal.Decimal, nonce Nonce) (TxResult, error)

	SubmitCalls []models.BatchId
	NoopCalls   []Nonce
}

// NewMockClient returns a MockClient with harmless defaults: never simulate-fails,
// submissions and noops succeed instantly.
func NewMockClient() *MockClient {
	return &MockClient{
		SimulateFunc: func(models.BatchId, models.Solution, uint64) (models.Objective, error) {
			return nil, nil
		},
	}
}

func (c *MockClient) CurrentAuctionIndex(ctx context.Context) (models.BatchId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.AuctionIndex, nil
}

func (c *MockClient) SecondsRemainingInBatch(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.SecondsRemaining, nil
}

func (c *MockClient) LastBlockOfBatch(ctx context.Context, b models.BatchId) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LastBlock, nil
}

func (c *MockClient) SimulateSubmitSolution(ctx context.Context, batch models.BatchId, solution models.Solution, atBlock uint64) (models.Objective, error) {
	c.mu.Lock()
	fn := c.SimulateFunc
	c.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(batch, solution, atBlock)
}

func (c *MockClient) SubmitSolution(ctx context.Context, batch models.BatchId, solution models.Solution, claimedObjective models.Objective, gasPrice decimal.Decimal, nonce Nonce, gasLimit uint64) (TxResult, error) {
	c.mu.Lock()
	c.SubmitCalls = append(c.SubmitCalls, batch)
	fn := c.SubmitFunc
	c.mu.Unlock()
	if fn == nil {
		return TxResult{}, nil
	}
	return fn(batch, solution, claimedObjective, gasPrice, nonce)
}

func (c *MockClient) SendNoopTransaction(ctx context.Context, gasPrice decimal.Decimal, nonce Nonce) (TxResult, error) {
	c.mu.Lock()
	c.NoopCalls = append(c.NoopCalls, nonce)
	fn := c.NoopFunc
	c.mu.Unlock()
	if fn == nil {
		return TxResult{}, nil
	}
	return fn(gasPrice, nonce)
}

func (c *MockClient) GetTransactionCount(ctx context.Context) (Nonce, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Nonce, nil
}

func (c *MockClient) PastEvents(ctx context.Context, from, to uint64, pageSize int) ([]EventBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PastEventsResult, nil
}

func (c *MockClient) StreamEvents(ctx context.Context) (<-chan EventBatch, <-chan error) {
	events := make(chan EventBatch)
	errs := make(chan error)
	go func() {
		<-ctx.Done()
		close(events)
		close(errs)
	}()
	return events, errs
}

var _ Client = (*MockClient)(nil)
