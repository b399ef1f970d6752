package exchange

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/gnosis/dex-driver/pkg/logger"
	"github.com/gnosis/dex-driver/pkg/models"
)

// defaultRequestsPerSecond caps outbound JSON-RPC calls against node providers that
// throttle by request rate (e.g. Infura's free tier).
const defaultRequestsPerSecond = 10

// RPCClient is the production implementation of Client, talking to a BatchExchange
// deployment over JSON-RPC. Grounded on the teacher's
// web3-wallet-backend/pkg/blockchain/ethereum.go (an *ethclient.Client wrapped with
// config/logger, simple pass-through methods, fmt.Errorf wrapping) and the original's
// services-core/src/contracts/stablex_contract.rs for the actual call shapes.
type RPCClient struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	from     common.Address
	log      *logger.Logger
	limiter  *rate.Limiter
}

// Dial connects to nodeURL and readies a client able to call and sign for contract at
// contractAddr using privateKeyHex (no "0x" prefix required).
func Dial(ctx context.Context, nodeURL, contractAddr, privateKeyHex string, log *logger.Logger) (*RPCClient, error) {
	client, err := ethclient.DialContext(ctx, nodeURL)
	if err != nil {
		return nil, fmt.Errorf("dial node: %w", err)
	}

	parsedABI, err := parsedBatchExchangeABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	return &RPCClient{
		client:   client,
		contract: common.HexToAddress(contractAddr),
		abi:      parsedABI,
		chainID:  chainID,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		log:      log.Named("exchange"),
		limiter:  rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
	}, nil
}

// Close releases the underlying node connection.
func (c *RPCClient) Close() { c.client.Close() }

// Account is the address transactions are signed and sent from.
func (c *RPCClient) Account() models.Address { return c.from }

func (c *RPCClient) CurrentAuctionIndex(ctx context.Context) (models.BatchId, error) {
	var batchID uint32
	if err := c.callView(ctx, &batchID, "getCurrentBatchId"); err != nil {
		return 0, fmt.Errorf("get current batch id: %w", err)
	}
	return models.BatchId(batchID), nil
}

func (c *RPCClient) SecondsRemainingInBatch(ctx context.Context) (time.Duration, error) {
	var seconds *big.Int
	if err := c.callView(ctx, &seconds, "getSecondsRemainingInBatch"); err != nil {
		return 0, fmt.Errorf("get seconds remaining in batch: %w", err)
	}
	return time.Duration(seconds.Int64()) * time.Second, nil
}

// LastBlockOfBatch binary-searches blocks 0 through the latest block for the highest
// block whose timestamp is before the end of batch b, per the original's
// search_batches module. If the batch has not yet closed, the latest block is returned.
func (c *RPCClient) LastBlockOfBatch(ctx context.Context, b models.BatchId) (uint64, error) {
	latest, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch latest header: %w", err)
	}
	batchEnd := (uint64(b) + 1) * models.BatchDuration
	if latest.Time < batchEnd {
		return latest.Number.Uint64(), nil
	}

	lo, hi := uint64(0), latest.Number.Uint64()
	for lo < hi {
		mid := (lo + hi + 1) / 2
		header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(mid))
		if err != nil {
			return 0, fmt.Errorf("fetch header %d: %w", mid, err)
		}
		if header.Time < batchEnd {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// maxObjectiveValue is the claimed objective value used for the view-only call that
// prices a solution: the contract multiplies the objective by 1+IMPROVEMENT_DENOMINATOR
// (101) internally, so this is the largest value that survives that multiplication
// without overflowing 256 bits, (2^256-1)/101; it avoids a false "not improved enough"
// revert during simulation. Grounded on stablex_contract.rs's MAX_OBJECTIVE_VALUE.
var maxObjectiveValue = new(big.Int).Div(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), big.NewInt(101))

func (c *RPCClient) SimulateSubmitSolution(ctx context.Context, batch models.BatchId, solution models.Solution, atBlock uint64) (models.Objective, error) {
	data, err := c.packSubmitSolution(batch, solution, maxObjectiveValue)
	if err != nil {
		return nil, fmt.Errorf("pack submit solution: %w", err)
	}

	msg := ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}
	var blockNumber *big.Int
	if atBlock != 0 {
		blockNumber = new(big.Int).SetUint64(atBlock)
	}
	out, err := c.client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("call submitSolution: %w", err)
	}

	values, err := c.abi.Methods["submitSolution"].Outputs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("unpack objective value: %w", err)
	}
	objective, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected objective value type %T", values[0])
	}
	result, overflow := uint256.FromBig(objective)
	if overflow {
		return nil, fmt.Errorf("objective value overflows 256 bits")
	}
	return result, nil
}

func (c *RPCClient) SubmitSolution(ctx context.Context, batch models.BatchId, solution models.Solution, claimedObjective models.Objective, gasPrice decimal.Decimal, nonce Nonce, gasLimit uint64) (TxResult, error) {
	data, err := c.packSubmitSolution(batch, solution, claimedObjective.ToBig())
	if err != nil {
		return TxResult{}, fmt.Errorf("pack submit solution: %w", err)
	}
	return c.sendSignedTx(ctx, &c.contract, big.NewInt(0), data, gasPrice, nonce, gasLimit)
}

// SendNoopTransaction sends a zero-value self-transfer to burn a nonce, used to cancel
// a stuck submission. Grounded on services-core/src/contracts/stablex_contract.rs's
// send_noop_transaction.
func (c *RPCClient) SendNoopTransaction(ctx context.Context, gasPrice decimal.Decimal, nonce Nonce) (TxResult, error) {
	return c.sendSignedTx(ctx, &c.from, big.NewInt(0), nil, gasPrice, nonce, 21000)
}

func (c *RPCClient) GetTransactionCount(ctx context.Context) (Nonce, error) {
	n, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return 0, fmt.Errorf("get transaction count: %w", err)
	}
	return Nonce(n), nil
}

func (c *RPCClient) PastEvents(ctx context.Context, from, to uint64, pageSize int) ([]EventBatch, error) {
	var batches []EventBatch
	for start := from; start <= to; start += uint64(pageSize) {
		end := start + uint64(pageSize) - 1
		if end > to {
			end = to
		}
		page, err := c.queryRange(ctx, start, end)
		if err != nil {
			return nil, fmt.Errorf("query logs [%d,%d]: %w", start, end, err)
		}
		batches = append(batches, page...)
	}
	return batches, nil
}

func (c *RPCClient) StreamEvents(ctx context.Context) (<-chan EventBatch, <-chan error) {
	out := make(chan EventBatch)
	errs := make(chan error, 1)

	logs := make(chan types.Log)
	query := ethereum.FilterQuery{Addresses: []common.Address{c.contract}}
	sub, err := c.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		errs <- fmt.Errorf("subscribe filter logs: %w", err)
		close(out)
		close(errs)
		return out, errs
	}

	go func() {
		defer close(out)
		defer close(errs)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				errs <- fmt.Errorf("log subscription: %w", err)
				return
			case lg := <-logs:
				blockTimes := make(map[uint64]uint64)
				batch, err := c.decodeLog(ctx, lg, blockTimes)
				if err != nil {
					errs <- fmt.Errorf("decode log: %w", err)
					return
				}
				if batch == nil {
					continue
				}
				select {
				case out <- *batch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errs
}

func (c *RPCClient) queryRange(ctx context.Context, from, to uint64) ([]EventBatch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
	}
	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	blockTimes := make(map[uint64]uint64)
	batches := make([]EventBatch, 0, len(logs))
	for _, lg := range logs {
		batch, err := c.decodeLog(ctx, lg, blockTimes)
		if err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		if batch != nil {
			batches = append(batches, *batch)
		}
	}
	return batches, nil
}

// blockTimestamp returns the timestamp of blockNumber, consulting cache first since a
// batch of logs usually shares a handful of blocks.
func (c *RPCClient) blockTimestamp(ctx context.Context, blockNumber uint64, cache map[uint64]uint64) (uint64, error) {
	if ts, ok := cache[blockNumber]; ok {
		return ts, nil
	}
	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, err
	}
	cache[blockNumber] = header.Time
	return header.Time, nil
}

func (c *RPCClient) callView(ctx context.Context, out interface{}, method string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	data, err := c.abi.Pack(method)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}, nil)
	if err != nil {
		return err
	}
	values, err := c.abi.Methods[method].Outputs.Unpack(result)
	if err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return assignOut(out, values[0])
}

func assignOut(dst interface{}, v interface{}) error {
	switch d := dst.(type) {
	case *uint32:
		val, ok := v.(uint32)
		if !ok {
			return fmt.Errorf("expected uint32, got %T", v)
		}
		*d = val
	case **big.Int:
		val, ok := v.(*big.Int)
		if !ok {
			return fmt.Errorf("expected *big.Int, got %T", v)
		}
		*d = val
	default:
		return fmt.Errorf("unsupported output target %T", dst)
	}
	return nil
}

// packSubmitSolution encodes a submitSolution call per
// services-core/src/contracts/stablex_contract.rs's encode_prices_for_contract /
// encode_execution_for_contract.
func (c *RPCClient) packSubmitSolution(batch models.BatchId, solution models.Solution, claimedObjective *big.Int) ([]byte, error) {
	tokenIds, prices := SortedNonzeroPrices(solution)
	owners, orderIds, volumes := NonzeroExecutions(solution)

	priceU128 := make([]*big.Int, len(prices))
	copy(priceU128, prices)
	volumeU128 := make([]*big.Int, len(volumes))
	copy(volumeU128, volumes)

	tokenIds16 := make([]uint16, len(tokenIds))
	for i, id := range tokenIds {
		tokenIds16[i] = uint16(id)
	}
	orderIds16 := make([]uint16, len(orderIds))
	for i, id := range orderIds {
		orderIds16[i] = uint16(id)
	}

	return c.abi.Pack("submitSolution",
		uint32(batch),
		claimedObjective,
		owners,
		orderIds16,
		volumeU128,
		priceU128,
		tokenIds16,
	)
}

func (c *RPCClient) sendSignedTx(ctx context.Context, to *common.Address, value *big.Int, data []byte, gasPrice decimal.Decimal, nonce Nonce, gasLimit uint64) (TxResult, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(nonce),
		To:       to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice.BigInt(),
		Data:     data,
	})

	signer := types.LatestSignerForChainID(c.chainID)
	signed, err := types.SignTx(tx, signer, c.key)
	if err != nil {
		return TxResult{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return TxResult{}, fmt.Errorf("send transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return TxResult{}, fmt.Errorf("wait for confirmation: %w", err)
	}

	result := TxResult{
		TxHash:      signed.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Reverted:    receipt.Status == types.ReceiptStatusFailed,
	}
	if result.Reverted {
		result.RevertReason = revertReason(ctx, c.client, signed, receipt.BlockNumber)
	}
	return result, nil
}

// revertReason replays the transaction as a call at the block it failed in to recover
// the require() message, since receipts carry no reason string.
func revertReason(ctx context.Context, client *ethclient.Client, tx *types.Transaction, block *big.Int) string {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}
	msg := ethereum.CallMsg{From: from, To: tx.To(), Value: tx.Value(), Data: tx.Data(), Gas: tx.Gas()}
	_, callErr := client.CallContract(ctx, msg, block)
	if callErr == nil {
		return ""
	}
	return strings.TrimPrefix(callErr.Error(), "execution reverted: ")
}

func (c *RPCClient) decodeLog(ctx context.Context, lg types.Log, blockTimes map[uint64]uint64) (*EventBatch, error) {
	if lg.Removed || len(lg.Topics) == 0 {
		return nil, nil
	}
	ev, err := c.abi.EventByID(lg.Topics[0])
	if err != nil {
		// Unknown topic: a log the ABI above doesn't describe.
		return nil, nil //nolint:nilerr
	}

	decoded, err := decodeEvent(ev, lg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ev.Name, err)
	}
	if decoded == nil {
		return nil, nil
	}

	ts, err := c.blockTimestamp(ctx, lg.BlockNumber, blockTimes)
	if err != nil {
		return nil, fmt.Errorf("fetch block %d timestamp: %w", lg.BlockNumber, err)
	}

	return &EventBatch{
		BlockNumber: lg.BlockNumber,
		BlockHash:   lg.BlockHash,
		LogIndex:    uint64(lg.Index),
		Timestamp:   ts,
		Event:       decoded,
	}, nil
}

// decodeEvent turns a raw log matching one of batchExchangeABI's events into the
// corresponding models.Event. Indexed arguments are recovered from topics, the rest
// by unpacking the log's data against the event's non-indexed inputs.
func decodeEvent(ev *abi.Event, lg types.Log) (models.Event, error) {
	data, err := ev.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}
	topicAddr := func(i int) common.Address { return common.BytesToAddress(lg.Topics[i].Bytes()) }

	switch ev.Name {
	case "Deposit":
		return models.Deposit{
			User:    topicAddr(1),
			Token:   topicAddr(2),
			Amount:  data[0].(*big.Int),
			BatchId: models.BatchId(data[1].(uint32)),
		}, nil
	case "WithdrawRequest":
		return models.WithdrawRequest{
			User:    topicAddr(1),
			Token:   topicAddr(2),
			Amount:  data[0].(*big.Int),
			BatchId: models.BatchId(data[1].(uint32)),
		}, nil
	case "Withdraw":
		return models.Withdraw{
			User:   topicAddr(1),
			Token:  topicAddr(2),
			Amount: data[0].(*big.Int),
		}, nil
	case "TokenListing":
		return models.TokenListing{
			Address: data[0].(common.Address),
			Id:      models.TokenId(data[1].(uint16)),
		}, nil
	case "OrderPlacement":
		return models.OrderPlacement{
			Owner:            topicAddr(1),
			Index:            models.OrderId(data[0].(uint16)),
			BuyToken:         models.TokenId(data[1].(uint16)),
			SellToken:        models.TokenId(data[2].(uint16)),
			ValidFrom:        models.BatchId(data[3].(uint32)),
			ValidUntil:       models.BatchId(data[4].(uint32)),
			PriceNumerator:   data[5].(*big.Int),
			PriceDenominator: data[6].(*big.Int),
		}, nil
	case "OrderCancellation":
		return models.OrderCancellation{
			Owner: topicAddr(1),
			Id:    models.OrderId(data[0].(uint16)),
		}, nil
	case "OrderDeletion":
		return models.OrderDeletion{
			Owner: topicAddr(1),
			Id:    models.OrderId(data[0].(uint16)),
		}, nil
	case "Trade":
		return models.Trade{
			Owner:              topicAddr(1),
			OrderId:            models.OrderId(data[0].(uint16)),
			SellToken:          models.TokenId(data[1].(uint16)),
			BuyToken:           models.TokenId(data[2].(uint16)),
			ExecutedSellAmount: data[3].(*big.Int),
			ExecutedBuyAmount:  data[4].(*big.Int),
		}, nil
	case "TradeReversion":
		return models.TradeReversion{
			Owner:   topicAddr(1),
			OrderId: models.OrderId(data[0].(uint16)),
		}, nil
	case "SolutionSubmission":
		return models.SolutionSubmission{
			Submitter: topicAddr(1),
			BurntFees: data[0].(*big.Int),
		}, nil
	default:
		return nil, nil
	}
}
