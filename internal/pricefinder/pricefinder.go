// Package pricefinder invokes the external optimizer subprocess described in §6:
// a file-based JSON protocol where the driver writes one instance file, runs a
// solver process against it, and reads back one result file. Grounded on the
// original's driver/src/price_finding/optimization_price_finder.rs
// (OptimisationPriceFinder), translated from its three swappable IO methods into a
// single os/exec invocation.
package pricefinder

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gnosis/dex-driver/pkg/models"
)

// Fee describes the fee charged on settlement, denominated as a ratio of volume in
// the given token.
type Fee struct {
	Token models.TokenId
	Ratio float64
}

// Config are the knobs for invoking the solver subprocess.
type Config struct {
	// Command is the executable to run, e.g. "python".
	Command string
	// BaseArgs are arguments that precede the result folder, e.g.
	// []string{"-m", "batchauctions.scripts.e2e._run"}.
	BaseArgs []string
	// SolverArg names which solver variant to invoke, e.g. "--solver=standard".
	SolverArg string
	// InstanceDir and ResultDir are the directories instance/result files are
	// written to and read from, respectively.
	InstanceDir string
	ResultDir   string
	Fee         *Fee
}

// PriceFinder implements driver.PriceFinder by shelling out to a solver process.
type PriceFinder struct {
	cfg Config
}

// New constructs a PriceFinder, creating the instance directory if necessary.
func New(cfg Config) (*PriceFinder, error) {
	if err := os.MkdirAll(cfg.InstanceDir, 0o755); err != nil {
		return nil, fmt.Errorf("create instance dir: %w", err)
	}
	return &PriceFinder{cfg: cfg}, nil
}

// FindPrices writes the batch's orders and balances as solver input, runs the
// configured solver subprocess bounded by deadline, and parses its output into a
// Solution. Any nonzero exit or malformed output is returned as a plain error; the
// caller (internal/driver) is responsible for mapping it to driverrors.Skip per §7.
func (pf *PriceFinder) FindPrices(ctx context.Context, batch models.BatchId, accounts models.AccountState, orders []models.Order, deadline time.Duration) (models.Solution, error) {
	instanceID := uuid.New().String()
	inputFile := filepath.Join(pf.cfg.InstanceDir, "instance_"+instanceID+".json")
	resultDir := filepath.Join(pf.cfg.ResultDir, instanceID)

	input := buildInput(accounts, orders, pf.cfg.Fee)
	raw, err := json.Marshal(input)
	if err != nil {
		return models.Solution{}, fmt.Errorf("marshal solver input: %w", err)
	}
	if err := os.WriteFile(inputFile, raw, 0o644); err != nil {
		return models.Solution{}, fmt.Errorf("write solver input: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	if err := pf.runSolver(runCtx, resultDir, inputFile); err != nil {
		return models.Solution{}, err
	}

	out, err := readOutput(resultDir)
	if err != nil {
		return models.Solution{}, err
	}
	return out.toSolution(), nil
}

func (pf *PriceFinder) runSolver(ctx context.Context, resultDir, inputFile string) error {
	args := append([]string{}, pf.cfg.BaseArgs...)
	args = append(args, resultDir, "--jsonFile", inputFile)
	if pf.cfg.SolverArg != "" {
		args = append(args, pf.cfg.SolverArg)
	}

	cmd := exec.CommandContext(ctx, pf.cfg.Command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("solver execution failed: %w: %s", err, output)
	}
	return nil
}

// solverOutputFile is the name the original solver writes its final result to,
// relative to the instance's result directory.
const solverOutputFile = "06_solution_int_valid.json"

func readOutput(resultDir string) (*solverOutput, error) {
	path := filepath.Join(resultDir, solverOutputFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read solver output: %w", err)
	}
	var out solverOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse solver output: %w", err)
	}
	return &out, nil
}

// tokenID marshals as "Txxxx" per §6 ("TokenId is serialized as T%04u").
type tokenID models.TokenId

func (t tokenID) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("T%04d", uint16(t))), nil
}

func (t *tokenID) UnmarshalText(b []byte) error {
	s := string(b)
	if len(s) != 5 || s[0] != 'T' {
		return fmt.Errorf("token id %q must be of the form Txxxx", s)
	}
	var id uint16
	if _, err := fmt.Sscanf(s[1:], "%04d", &id); err != nil {
		return fmt.Errorf("token id %q: %w", s, err)
	}
	*t = tokenID(id)
	return nil
}

// amount marshals as a decimal string to avoid float64 precision loss per §6.
type amount struct{ *big.Int }

func newAmount(a models.Amount) amount {
	if a == nil {
		return amount{new(big.Int)}
	}
	return amount{a}
}

func (a amount) MarshalText() ([]byte, error) {
	if a.Int == nil {
		return []byte("0"), nil
	}
	return []byte(a.Int.String()), nil
}

func (a *amount) UnmarshalText(b []byte) error {
	v, ok := new(big.Int).SetString(string(b), 10)
	if !ok {
		return fmt.Errorf("amount %q is not a base-10 integer", b)
	}
	a.Int = v
	return nil
}

type solverFee struct {
	Token tokenID `json:"token"`
	Ratio float64 `json:"ratio"`
}

type solverOrder struct {
	AccountID  models.Address `json:"accountID"`
	SellToken  tokenID        `json:"sellToken"`
	BuyToken   tokenID        `json:"buyToken"`
	SellAmount amount         `json:"sellAmount"`
	BuyAmount  amount         `json:"buyAmount"`
	OrderID    models.OrderId `json:"orderID"`
}

type solverInput struct {
	Tokens   []tokenID                        `json:"tokens"`
	RefToken tokenID                           `json:"refToken"`
	Accounts map[models.Address]map[tokenID]amount `json:"accounts"`
	Orders   []solverOrder                     `json:"orders"`
	Fee      *solverFee                        `json:"fee,omitempty"`
}

func buildInput(accounts models.AccountState, orders []models.Order, fee *Fee) solverInput {
	input := solverInput{
		RefToken: tokenID(models.FeeTokenId),
		Accounts: make(map[models.Address]map[tokenID]amount),
	}

	tokenSet := make(map[tokenID]bool)
	for _, o := range orders {
		tokenSet[tokenID(o.SellToken)] = true
		tokenSet[tokenID(o.BuyToken)] = true

		remaining := o.RemainingSellAmount()
		buy, sell := models.ComputeBuySellAmounts(o.PriceNumerator, o.PriceDenominator, remaining)
		input.Orders = append(input.Orders, solverOrder{
			AccountID:  o.User,
			SellToken:  tokenID(o.SellToken),
			BuyToken:   tokenID(o.BuyToken),
			SellAmount: newAmount(sell),
			BuyAmount:  newAmount(buy),
			OrderID:    o.Id,
		})

		for _, tok := range [2]models.TokenId{o.SellToken, o.BuyToken} {
			key := models.AccountBalanceKey{User: o.User, TokenId: tok}
			bal, ok := accounts[key]
			if !ok || bal.Sign() <= 0 {
				continue
			}
			perUser, ok := input.Accounts[o.User]
			if !ok {
				perUser = make(map[tokenID]amount)
				input.Accounts[o.User] = perUser
			}
			perUser[tokenID(tok)] = newAmount(bal)
		}
	}

	input.Tokens = make([]tokenID, 0, len(tokenSet))
	for t := range tokenSet {
		input.Tokens = append(input.Tokens, t)
	}
	sort.Slice(input.Tokens, func(i, j int) bool { return input.Tokens[i] < input.Tokens[j] })

	if fee != nil {
		input.Fee = &solverFee{Token: tokenID(fee.Token), Ratio: fee.Ratio}
	}
	return input
}

type solverExecutedOrder struct {
	AccountID      models.Address `json:"accountID"`
	OrderID        models.OrderId `json:"orderID"`
	ExecSellAmount amount         `json:"execSellAmount"`
	ExecBuyAmount  amount         `json:"execBuyAmount"`
}

type solverOutput struct {
	Prices    map[tokenID]*amount   `json:"prices"`
	Orders    []solverExecutedOrder `json:"orders"`
	ObjVals   json.RawMessage       `json:"objVals,omitempty"`
	Solver    string                `json:"solver,omitempty"`
	BurntFees *amount               `json:"burntFees,omitempty"`
}

// toSolution converts the solver's output to a models.Solution, filtering out null
// or zero prices per §6.
func (o *solverOutput) toSolution() models.Solution {
	prices := make(map[models.TokenId]models.Amount)
	for tok, a := range o.Prices {
		if a == nil || a.Int == nil || a.Sign() == 0 {
			continue
		}
		prices[models.TokenId(tok)] = a.Int
	}

	executed := make([]models.ExecutedOrder, 0, len(o.Orders))
	for _, eo := range o.Orders {
		executed = append(executed, models.ExecutedOrder{
			User:       eo.AccountID,
			OrderId:    eo.OrderID,
			SellAmount: nonNil(eo.ExecSellAmount.Int),
			BuyAmount:  nonNil(eo.ExecBuyAmount.Int),
		})
	}

	sol := models.Solution{Prices: prices, ExecutedOrders: executed}
	if o.BurntFees != nil {
		sol.BurntFees = nonNil(o.BurntFees.Int)
	} else {
		sol.BurntFees = new(big.Int)
	}
	return sol
}

func nonNil(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return a
}
