package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/urfave/cli/v2"

	"github.com/young-rocks/aptos-core/core"
	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
	"github.com/young-rocks/aptos-core/log"
	"github.com/young-rocks/aptos-core/nodeconfig"
	"github.com/young-rocks/aptos-core/params"
)

// replayBlock/replayEntryFunction are the newline-delimited JSON shapes
// executorctl's test harness feeds in (SPEC_FULL.md §4.8 "replay"). This is
// a harness-local record, not the chain's own wire codec — the real
// transaction serialization format is explicitly out of scope (spec.md §1
// "serialization codecs").
type replayBlock struct {
	Transactions []replayTransaction `json:"transactions"`
}

type replayTransaction struct {
	Kind           string                  `json:"kind"` // "user" | "checkpoint" | "validator"
	Sender         string                  `json:"sender,omitempty"`
	SequenceNumber uint64                  `json:"sequence_number,omitempty"`
	MaxGasAmount   uint64                  `json:"max_gas_amount,omitempty"`
	GasUnitPrice   uint64                  `json:"gas_unit_price,omitempty"`
	EntryFunction  *replayEntryFunction    `json:"entry_function,omitempty"`
}

type replayEntryFunction struct {
	ModuleAddress string   `json:"module_address"`
	ModuleName    string   `json:"module_name"`
	Function      string   `json:"function"`
	TypeArgs      []string `json:"type_args"`
	Args          []string `json:"args"` // each hex-encoded, "0x"-prefixed or not
}

func decodeHexAddress(s string) ([32]byte, error) {
	var addr [32]byte
	b, err := hex.DecodeString(trimHex(s))
	if err != nil {
		return addr, err
	}
	if len(b) > 32 {
		return addr, fmt.Errorf("address %q longer than 32 bytes", s)
	}
	copy(addr[32-len(b):], b)
	return addr, nil
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (rt replayTransaction) toTransaction() (types.Transaction, error) {
	switch rt.Kind {
	case "checkpoint":
		return types.Transaction{Kind: types.TransactionStateCheckpoint}, nil
	case "validator":
		return types.Transaction{Kind: types.TransactionValidator}, nil
	case "user":
		if rt.EntryFunction == nil {
			return types.Transaction{}, fmt.Errorf("user transaction missing entry_function")
		}
		sender, err := decodeHexAddress(rt.Sender)
		if err != nil {
			return types.Transaction{}, fmt.Errorf("sender: %w", err)
		}
		moduleAddr, err := decodeHexAddress(rt.EntryFunction.ModuleAddress)
		if err != nil {
			return types.Transaction{}, fmt.Errorf("module_address: %w", err)
		}
		args := make([][]byte, len(rt.EntryFunction.Args))
		for i, a := range rt.EntryFunction.Args {
			b, err := hex.DecodeString(trimHex(a))
			if err != nil {
				return types.Transaction{}, fmt.Errorf("args[%d]: %w", i, err)
			}
			args[i] = b
		}
		user := types.UserTransaction{
			Metadata: types.TransactionMetadata{
				Sender:         sender,
				SequenceNumber: rt.SequenceNumber,
				MaxGasAmount:   rt.MaxGasAmount,
				GasUnitPrice:   rt.GasUnitPrice,
			},
			Payload: types.Payload{
				Kind: types.PayloadEntryFunction,
				EntryFunction: &types.EntryFunctionPayload{
					Module:   types.ModuleId{Address: moduleAddr, Name: rt.EntryFunction.ModuleName},
					Function: rt.EntryFunction.Function,
					TyArgs:   rt.EntryFunction.TypeArgs,
					Args:     args,
				},
			},
		}
		return types.Transaction{Kind: types.TransactionUser, User: &user}, nil
	default:
		return types.Transaction{}, fmt.Errorf("unknown replay transaction kind %q", rt.Kind)
	}
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "drive a newline-delimited JSON file of blocks through BlockDriver, printing per-transaction statuses",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the node TOML config"},
			&cli.StringFlag{Name: "blocks", Required: true, Usage: "path to the newline-delimited JSON blocks file"},
		},
		Action: runReplay,
	}
}

func runReplay(ctx *cli.Context) error {
	cfg, err := loadConfigFlag(ctx)
	if err != nil {
		return err
	}
	nodeconfig.SetActive(cfg)

	if RuntimeFactory == nil {
		return fmt.Errorf("no Runtime wired into this binary (see cmd/executorctl/runtime.go)")
	}
	runtime, err := RuntimeFactory()
	if err != nil {
		return fmt.Errorf("constructing runtime: %w", err)
	}

	pipeline := core.NewTransactionPipeline(
		runtime,
		params.NewFeatures(),
		7,
		params.StorageGasParameters{},
		func(cs *types.ChangeSet, txnSize, gasUnitPrice uint64) (uint64, uint64, error) { return 0, 0, nil },
		nil,
		func(loc types.AbortLocation, code uint64) *types.AbortInfo { return nil },
	)
	driver := core.NewBlockDriver(pipeline, cfg.WorkerPoolCap, func(level core.LogLevel, subStatus uint64, err error) {
		log.Warn("block driver invariant event", "sub_status", subStatus, "err", err)
	})

	f, err := os.Open(ctx.String("blocks"))
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var base vm.MoveResolver = emptyResolver{}
	blockNum := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rb replayBlock
		if err := json.Unmarshal(line, &rb); err != nil {
			return fmt.Errorf("block %d: %w", blockNum, err)
		}
		txns := make([]types.Transaction, len(rb.Transactions))
		for i, rt := range rb.Transactions {
			txn, err := rt.toTransaction()
			if err != nil {
				return fmt.Errorf("block %d, txn %d: %w", blockNum, i, err)
			}
			txns[i] = txn
		}

		result := driver.Run(ctx.Context, txns, base)
		printBlockResult(blockNum, result)
		blockNum++
	}
	return scanner.Err()
}

// replayStdout wraps os.Stdout through go-colorable so the ANSI sequences
// fatih/color emits render correctly on Windows consoles too, the same
// pairing the teacher's own CLI tooling uses for colorized terminal output.
var replayStdout = colorable.NewColorableStdout()

func printBlockResult(blockNum int, result core.BlockResult) {
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintf(replayStdout, "block %d: %d transaction(s)\n", blockNum, len(result.Outputs))
	for i, out := range result.Outputs {
		line := fmt.Sprintf("  [%d] %s", i, out.Status.String())
		if out.Status.IsDiscarded() {
			color.New(color.FgRed).Fprintln(replayStdout, line)
		} else {
			color.New(color.FgGreen).Fprintln(replayStdout, line)
		}
	}
	if result.ShouldRestartExecution {
		color.New(color.FgYellow, color.Bold).Fprintf(replayStdout, "  new_epoch observed, stopping block after %d transaction(s)\n", result.StoppedAt)
	}
}

func loadConfigFlag(ctx *cli.Context) (nodeconfig.Config, error) {
	path := ctx.String("config")
	if path == "" {
		return nodeconfig.Default(), nil
	}
	return nodeconfig.Load(path)
}

// emptyResolver answers every read as absent — the base state for a replay
// run that starts from genesis with no prior chain history.
type emptyResolver struct{}

func (emptyResolver) GetModule(types.StateKey) (*vm.StateValue, error)   { return nil, nil }
func (emptyResolver) GetResource(types.StateKey) (*vm.StateValue, error) { return nil, nil }
func (emptyResolver) GetResourceFromGroup(types.StateKey, string, []byte) ([]byte, error) {
	return nil, nil
}
func (emptyResolver) GetAggregatorV1Value(types.StateKey) (uint64, error) { return 0, nil }
func (emptyResolver) GetDelayedFieldValue(types.DelayedFieldID) (uint64, error) {
	return 0, nil
}
func (emptyResolver) DelayedFieldTryAddDeltaOutcome(types.DelayedFieldID, types.DelayedApplyChange, uint64) (bool, error) {
	return false, nil
}
func (emptyResolver) IsDelayedFieldOptimizationCapable() bool { return false }
func (emptyResolver) ReleaseResourceGroupCache()              {}
