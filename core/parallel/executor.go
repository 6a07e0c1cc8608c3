// Package parallel runs a block's transactions speculatively across a fixed
// worker pool and serializes the result in transaction-index order (spec.md
// §4.5 "Parallel execution"). Unlike a statically-analyzable transaction
// model, a Move transaction's read/write set is not known before it runs, so
// this executor cannot precompute non-conflicting levels up front. Instead it
// runs every task once optimistically against the base resolver, then
// validates each task's recorded reads against the true commit prefix and
// re-runs only the ones a lower-index transaction actually touched.
package parallel

import (
	"context"
	"fmt"
	"sync"

	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

// Task is one block position's unit of speculative work. Execute must be a
// deterministic function of what it reads through resolver (spec.md §4.5's
// core contract for safe re-execution).
type Task interface {
	Execute(resolver vm.MoveResolver) (*types.ChangeSet, error)
}

// ErrExecAbort marks a task failure the executor must treat as a conflict
// signal to retry, not a real transaction outcome (spec.md §4.5
// "distinguishes a genuinely failed transaction from a speculative
// execution abort"). A Task should wrap its error with this when the
// failure stems from an inconsistent read caused by running ahead of a
// not-yet-committed dependency, mirroring blockstm.ErrExecAbortError.
type ErrExecAbort struct {
	Cause error
}

func (e *ErrExecAbort) Error() string { return fmt.Sprintf("speculative execution abort: %v", e.Cause) }
func (e *ErrExecAbort) Unwrap() error { return e.Cause }

// Outcome is one task's final, validated result.
type Outcome struct {
	ChangeSet *types.ChangeSet
	Err       error
	Reruns    int // how many times this task was re-executed; for metrics only
}

// Executor runs tasks with a bounded worker pool (spec.md §5 "Scheduling
// model": a fixed-size pool, not one goroutine per transaction).
type Executor struct {
	concurrency int
}

// NewExecutor builds an executor with the given worker-pool size. A
// concurrency of 1 degenerates to strictly sequential execution.
func NewExecutor(concurrency int) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{concurrency: concurrency}
}

// Run executes tasks against base in block order, returning one Outcome per
// task. It never holds more than one uncommitted write per key: validation
// happens strictly left to right, so by the time task i is finalized every
// task j<i has already committed (spec.md §4.5 "commits are applied to the
// block's working state in transaction-index order").
func (e *Executor) Run(ctx context.Context, tasks []Task, base vm.MoveResolver) []Outcome {
	n := len(tasks)
	if n == 0 {
		return nil
	}

	speculative := e.runSpeculative(ctx, tasks, base)

	outcomes := make([]Outcome, n)
	prefix := types.NewChangeSet()
	writtenKeys := map[types.StateKey]struct{}{}
	writtenDelayed := map[types.DelayedFieldID]struct{}{}

	for i, task := range tasks {
		spec := speculative[i]

		needsRerun := spec.abort || (spec.reads != nil && spec.reads.intersectsWrites(writtenKeys, writtenDelayed))
		var cs *types.ChangeSet
		var err error
		reruns := 0
		if needsRerun {
			view := vm.NewExecutorViewWithChangeSet(base, prefix, nil)
			cs, err = task.Execute(view)
			reruns = 1
			// A second-run abort is a genuine failure: there is no further
			// fallback once we have committed to the true prefix.
			if abortErr, ok := asAbort(err); ok {
				err = abortErr.Cause
			}
		} else {
			cs, err = spec.changeSet, spec.err
		}

		outcomes[i] = Outcome{ChangeSet: cs, Err: err, Reruns: reruns}

		if err == nil && cs != nil {
			merged, serr := types.Squash(prefix, cs)
			if serr != nil {
				outcomes[i] = Outcome{Err: serr, Reruns: reruns}
				continue
			}
			prefix = merged
			ks, ds := writtenKeysOf(cs)
			for k := range ks {
				writtenKeys[k] = struct{}{}
			}
			for id := range ds {
				writtenDelayed[id] = struct{}{}
			}
		}
	}
	return outcomes
}

type specResult struct {
	changeSet *types.ChangeSet
	err       error
	abort     bool
	reads     *readSet
}

// runSpeculative executes every task once, concurrently, against the base
// resolver alone — optimistically assuming no transaction in the block
// depends on another's writes. Validation in Run() catches the cases where
// that assumption was wrong.
func (e *Executor) runSpeculative(ctx context.Context, tasks []Task, base vm.MoveResolver) []specResult {
	n := len(tasks)
	results := make([]specResult, n)

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				results[idx] = specResult{err: ctx.Err(), abort: true}
				return
			}
			rr := newRecordingResolver(base)
			cs, err := t.Execute(rr)
			_, isAbort := asAbort(err)
			results[idx] = specResult{changeSet: cs, err: err, abort: isAbort, reads: rr.reads}
		}(i, task)
	}
	wg.Wait()
	return results
}

func asAbort(err error) (*ErrExecAbort, bool) {
	if err == nil {
		return nil, false
	}
	if a, ok := err.(*ErrExecAbort); ok {
		return a, true
	}
	return nil, false
}
