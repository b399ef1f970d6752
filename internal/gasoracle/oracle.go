// Package gasoracle polls an external gas price oracle and degrades gracefully when
// it is unavailable. Grounded on the teacher's internal/blockchain/gas_oracle.go
// (cached GasPriceData, background poll loop, degrade-on-failure) and
// internal/blockchain/gas/strategies.go (BaseFeeMultiplier = 1.125 bump rule).
package gasoracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MinGasPriceIncreaseFactor is the node-enforced minimum bump between two
// transactions sharing a nonce. EffectiveCap divides the gas price cap by it so the
// last retry attempt leaves room for one more bump below the cap.
var MinGasPriceIncreaseFactor = decimal.NewFromFloat(1.125)

// Prices is one oracle reading, preferring Fast over Standard over SafeLow.
type Prices struct {
	Fast     decimal.Decimal
	Standard decimal.Decimal
	SafeLow  decimal.Decimal
	FetchedAt time.Time
}

// Preferred returns the price this driver should treat as "the" estimate: Fast.
func (p Prices) Preferred() decimal.Decimal {
	return p.Fast
}

// Fetcher retrieves one fresh oracle reading; implemented against whatever HTTP gas
// station the deployment points at. Kept as an interface so tests never need a live
// oracle.
type Fetcher interface {
	Fetch(ctx context.Context) (Prices, error)
}

// Oracle polls a Fetcher on an interval and caches the last successful reading,
// falling back to it (and ultimately to a configured default) whenever a poll fails.
type Oracle struct {
	fetcher Fetcher
	log     *zap.Logger
	fallback decimal.Decimal

	mu      sync.RWMutex
	last    Prices
	haveAny bool

	stop chan struct{}
	done chan struct{}
}

// New constructs an Oracle that has not yet polled; Current returns fallback until the
// first successful poll.
func New(fetcher Fetcher, fallback decimal.Decimal, log *zap.Logger) *Oracle {
	return &Oracle{
		fetcher:  fetcher,
		log:      log,
		fallback: fallback,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background poll loop at the given interval. Call Stop to end it.
func (o *Oracle) Start(ctx context.Context, interval time.Duration) {
	go func() {
		defer close(o.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		o.poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stop:
				return
			case <-ticker.C:
				o.poll(ctx)
			}
		}
	}()
}

// Stop ends the background poll loop and waits for it to exit.
func (o *Oracle) Stop() {
	close(o.stop)
	<-o.done
}

func (o *Oracle) poll(ctx context.Context) {
	prices, err := o.fetcher.Fetch(ctx)
	if err != nil {
		o.log.Warn("gas oracle poll failed, degrading to last known value", zap.Error(err))
		return
	}
	prices.FetchedAt = time.Now()
	o.mu.Lock()
	o.last = prices
	o.haveAny = true
	o.mu.Unlock()
}

// Current returns the best currently-known gas price: the last successful poll's
// preferred value, or the configured fallback if no poll has ever succeeded.
func (o *Oracle) Current() decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.haveAny {
		return o.fallback
	}
	return o.last.Preferred()
}

// InfallibleEstimator caches the highest estimate seen across its lifetime, per the
// node's rule that a replacement transaction's gas price may never decrease. It wraps
// an Oracle (or any decimal.Decimal source) with a "never decreases" guarantee that
// plain polling cannot provide by itself.
type InfallibleEstimator struct {
	source func() decimal.Decimal

	mu   sync.Mutex
	best decimal.Decimal
}

// NewInfallibleEstimator wraps source (typically (*Oracle).Current) with memory.
func NewInfallibleEstimator(source func() decimal.Decimal) *InfallibleEstimator {
	return &InfallibleEstimator{source: source}
}

// Estimate returns max(previous best estimate, fresh reading from source).
func (e *InfallibleEstimator) Estimate() decimal.Decimal {
	fresh := e.source()
	e.mu.Lock()
	defer e.mu.Unlock()
	if fresh.GreaterThan(e.best) {
		e.best = fresh
	}
	return e.best
}

// EffectiveCap returns floor(cap / MinGasPriceIncreaseFactor): the highest gas price a
// retry attempt may use and still leave room for one further 12.5% bump, i.e. the
// threshold past which the retry loop in internal/submission must stop.
func EffectiveCap(cap decimal.Decimal) decimal.Decimal {
	return cap.Div(MinGasPriceIncreaseFactor).Floor()
}

// AttemptGasPrice returns g_k = min(cap, estimate * 1.5^k), the gas price for retry
// attempt k.
func AttemptGasPrice(estimate, cap decimal.Decimal, k int) decimal.Decimal {
	multiplier := decimal.NewFromFloat(1.5).Pow(decimal.NewFromInt(int64(k)))
	candidate := estimate.Mul(multiplier)
	if candidate.GreaterThan(cap) {
		return cap
	}
	return candidate
}

// CapFromSubsidy computes the gas price cap per the subsidy formula:
//
//	cap = subsidy * burnt_fees_in_owl / (eth_price_in_owl * gas_per_trade * num_trades)
//
// Saturates to zero when numTrades is zero.
func CapFromSubsidy(subsidyFactor, burntFeesInOwl, ethPriceInOwl, gasPerTrade decimal.Decimal, numTrades int) (decimal.Decimal, error) {
	if numTrades == 0 {
		return decimal.Zero, nil
	}
	denominator := ethPriceInOwl.Mul(gasPerTrade).Mul(decimal.NewFromInt(int64(numTrades)))
	if denominator.IsZero() {
		return decimal.Zero, fmt.Errorf("gas price cap: zero denominator (eth_price=%s gas_per_trade=%s)", ethPriceInOwl, gasPerTrade)
	}
	return subsidyFactor.Mul(burntFeesInOwl).Div(denominator), nil
}
