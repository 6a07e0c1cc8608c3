package core

import (
	"fmt"

	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

// ExecuteViewFunction runs one read-only function call bypassing visibility,
// bounded by an explicit gas budget, and returns its raw return values
// (spec.md §6 "execute_view_function"). Unlike ExecuteUserTransaction, the
// resulting ChangeSet is always discarded — a view call never mutates state
// and is never billed beyond the caller-supplied budget.
func (p *TransactionPipeline) ExecuteViewFunction(
	module types.ModuleId,
	function string,
	tyArgs []string,
	args [][]byte,
	gasBudget uint64,
	resolver vm.MoveResolver,
) ([][]byte, error) {
	sessionID := types.NewMetaSessionId(types.SessionView, [32]byte{})
	session := p.runtime.NewSession(resolver, sessionID)
	meter := p.newMeter(gasBudget)

	result, err := session.ExecuteFunctionBypassVisibility(module, function, tyArgs, args, nil, meter)
	if err != nil {
		return nil, fmt.Errorf("%w: view call %s::%s: %v", ErrInvariantViolation, module.Name, function, err)
	}
	// Finish is still required to release the session cleanly, even though
	// a view call's ChangeSet is never applied (spec.md §6: view functions
	// "bypass visibility" but are not part of §4.2's committed pipeline).
	if _, err := session.Finish(); err != nil {
		return nil, fmt.Errorf("%w: view call %s::%s finish: %v", ErrInvariantViolation, module.Name, function, err)
	}
	return result.ReturnValues, nil
}
