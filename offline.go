// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"fmt"
)

// OfflineRunner evaluates the automaton by backward dynamic
// programming over the reachable-at-depth table. It consumes the input
// right-to-left; feed it a ReversedStream.
//
// Invariant: after consuming the last k input bits, weights[v] (for v
// reachable at depth N-k) encodes in slot 0 whether the automaton
// accepts when started from v over that suffix. At depth 0 the answer
// is weights[q0].
type OfflineRunner struct {
	stopFlag

	graph *Graph
	eval  *Evaluator

	n     int // input length
	depth int // current depth, counts n..0

	interval int // bootstrap every interval CMUX levels; 0 = never

	weights []*TRLWE // indexed by state; nil when not live at depth
}

// OfflineOptions tunes the offline runner.
type OfflineOptions struct {
	// BootstrapInterval refreshes every weight after this many CMUX
	// levels. Zero bootstraps after every input when a gate key is
	// present and never otherwise.
	BootstrapInterval int
}

// NewOfflineRunner builds an offline runner for an input of n AP-Bits.
// The graph is minimized and its reachable-at-depth table is built
// here; eval may lack a gate key, in which case no bootstrapping
// happens and the parameters must absorb n CMUX levels of noise.
func NewOfflineRunner(g *Graph, n int, eval *Evaluator, opts OfflineOptions) (*OfflineRunner, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative input length %d", ErrBadConfig, n)
	}
	if opts.BootstrapInterval < 0 {
		return nil, fmt.Errorf("%w: negative bootstrap interval", ErrBadConfig)
	}

	interval := opts.BootstrapInterval
	if interval == 0 && eval.CanBootstrap() {
		interval = 1
	}
	if interval > 0 && !eval.CanBootstrap() {
		return nil, fmt.Errorf("%w: bootstrap interval %d without a gate key", ErrBadKey, interval)
	}

	min := g.Minimized()
	min.ReserveStatesAtDepth(n)

	r := &OfflineRunner{
		graph:    min,
		eval:     eval,
		n:        n,
		depth:    n,
		interval: interval,
		weights:  make([]*TRLWE, min.NumStates()),
	}

	// Base case: the constant acceptance indicator of each state
	// reachable at the deepest level.
	for _, v := range min.StatesAtDepth(n) {
		r.weights[v] = eval.TrivialBit(min.IsFinal(v))
	}

	return r, nil
}

// SizeHint returns the number of AP-Bits still expected.
func (r *OfflineRunner) SizeHint() int { return r.depth }

// Step consumes the next AP-Bit of the reversed input and rolls every
// live weight one depth back.
func (r *OfflineRunner) Step(ap *APBit) error {
	if err := r.check(); err != nil {
		return err
	}
	if r.depth == 0 {
		return fmt.Errorf("%w: more than %d AP-Bits for the reserved depth table", ErrBadInput, r.n)
	}

	r.depth--
	live := r.graph.StatesAtDepth(r.depth)
	next := make([]*TRLWE, r.graph.NumStates())

	parallelStates(r.eval, len(live), func(w *Evaluator, i int) {
		v := live[i]
		next[v] = w.CMUX(ap.G, r.weights[r.graph.Child(v, 1)], r.weights[r.graph.Child(v, 0)])
	})
	r.weights = next

	if r.interval > 0 && (r.n-r.depth)%r.interval == 0 {
		return r.refresh(live)
	}
	return nil
}

// refresh gate-bootstraps every live weight, resetting CMUX noise.
func (r *OfflineRunner) refresh(live []int) error {
	errs := make([]error, len(live))
	parallelStates(r.eval, len(live), func(w *Evaluator, i int) {
		v := live[i]
		fresh, err := w.RefreshWeight(r.weights[v])
		if err != nil {
			errs[i] = err
			return
		}
		r.weights[v] = fresh
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Result extracts the acceptance bit. The full input must have been
// consumed; the initial-state weight is refreshed first when a gate
// key is present.
func (r *OfflineRunner) Result() (*TLWE, error) {
	if r.depth != 0 {
		return nil, fmt.Errorf("%w: %d AP-Bits still unconsumed", ErrBadInput, r.depth)
	}
	w := r.weights[r.graph.Init()]
	if w == nil {
		return nil, fmt.Errorf("%w: initial state weight missing", ErrBadInput)
	}
	if r.eval.CanBootstrap() {
		fresh, err := r.eval.RefreshWeight(w)
		if err != nil {
			return nil, err
		}
		w = fresh
	}
	return r.eval.Extract(w, 0), nil
}

// EvalStream drains a reversed stream through the runner.
func (r *OfflineRunner) EvalStream(in InputStream) error {
	for in.Size() > 0 {
		ap, err := in.Next()
		if err != nil {
			return err
		}
		if err := r.Step(ap); err != nil {
			return err
		}
	}
	return nil
}
