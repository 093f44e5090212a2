// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"fmt"
)

// OnlineReversedRunner streams the input forward while folding the
// reversed, determinized, minimized automaton. weights[v] carries in
// slot 0 the sign-encoded indicator that the reversed automaton,
// started at v, accepts the input consumed so far in reverse order;
// the prefix acceptance of the original automaton is then always
// weights[init] of the reversed graph.
//
// Because the reversal absorbs the input direction, each step is the
// offline recurrence applied forward: no reachable-at-depth table and
// no known length are needed.
type OnlineReversedRunner struct {
	stopFlag

	graph *Graph // reversed, minimized
	eval  *Evaluator

	interval  int
	processed int

	weights []*TRLWE
	lastOut *TLWE
	dirty   bool // steps taken since lastOut was extracted
}

// NewOnlineReversedRunner builds the reversed-automaton runner from
// the forward graph. A gate key is required for the periodic refresh
// and the output extraction.
func NewOnlineReversedRunner(g *Graph, eval *Evaluator, opts OnlineOptions) (*OnlineReversedRunner, error) {
	if opts.BootstrapInterval < 0 {
		return nil, fmt.Errorf("%w: negative bootstrap interval", ErrBadConfig)
	}
	if !eval.CanBootstrap() {
		return nil, fmt.Errorf("%w: online evaluation requires a gate key", ErrBadKey)
	}
	interval := opts.BootstrapInterval
	if interval == 0 {
		interval = DefaultBootstrapInterval
	}

	rev := g.Reversed().Minimized()
	r := &OnlineReversedRunner{
		graph:    rev,
		eval:     eval,
		interval: interval,
		weights:  make([]*TRLWE, rev.NumStates()),
	}
	for v := range r.weights {
		r.weights[v] = eval.TrivialBit(rev.IsFinal(v))
	}
	return r, nil
}

// SizeHint reports an unbounded stream.
func (r *OnlineReversedRunner) SizeHint() int { return -1 }

// Step prepends the new input bit to the reversed run: every state
// weight is replaced by the CMUX of its two successors' weights.
func (r *OnlineReversedRunner) Step(ap *APBit) error {
	if err := r.check(); err != nil {
		return err
	}

	n := r.graph.NumStates()
	next := make([]*TRLWE, n)
	parallelStates(r.eval, n, func(w *Evaluator, v int) {
		next[v] = w.CMUX(ap.G, r.weights[r.graph.Child(v, 1)], r.weights[r.graph.Child(v, 0)])
	})
	r.weights = next
	r.processed++
	r.dirty = true

	if r.processed%r.interval == 0 {
		if err := r.refresh(); err != nil {
			return err
		}
		// Boundary output: every weight has just been refreshed;
		// extract and bootstrap the initial-state slot into the
		// emitted acceptance bit.
		out, err := r.eval.RefreshBit(r.eval.Extract(r.weights[r.graph.Init()], 0))
		if err != nil {
			return err
		}
		r.lastOut = out
		r.dirty = false
	}
	return nil
}

// refresh gate-bootstraps every state weight.
func (r *OnlineReversedRunner) refresh() error {
	errs := make([]error, len(r.weights))
	parallelStates(r.eval, len(r.weights), func(w *Evaluator, v int) {
		fresh, err := w.RefreshWeight(r.weights[v])
		if err != nil {
			errs[v] = err
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

// Result returns the most recently extracted acceptance bit, or
// extracts one on demand when steps have been taken since the last
// bootstrap boundary.
func (r *OnlineReversedRunner) Result() (*TLWE, error) {
	if r.lastOut != nil && !r.dirty {
		return r.lastOut, nil
	}
	out, err := r.eval.RefreshBit(r.eval.Extract(r.weights[r.graph.Init()], 0))
	if err != nil {
		return nil, err
	}
	r.lastOut = out
	r.dirty = false
	return out, nil
}
