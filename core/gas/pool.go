package gas

import "fmt"

// ErrGasLimitReached mirrors the teacher's core.GasPool sentinel
// (core-state_transition.go): the block-level gas budget is exhausted.
var ErrGasLimitReached = fmt.Errorf("gas limit reached")

// Pool tracks the block-level gas budget across the transactions in a
// block, the same role the teacher's *core.GasPool plays in
// state_transition_rollup.go's buyGas family.
type Pool struct {
	gas uint64
}

func NewPool(amount uint64) *Pool {
	return &Pool{gas: amount}
}

func (p *Pool) AddGas(amount uint64) *Pool {
	p.gas += amount
	return p
}

func (p *Pool) SubGas(amount uint64) error {
	if p.gas < amount {
		return ErrGasLimitReached
	}
	p.gas -= amount
	return nil
}

func (p *Pool) Gas() uint64 { return p.gas }
