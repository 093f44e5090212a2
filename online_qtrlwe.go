// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"fmt"
)

// DefaultBootstrapInterval is the online runners' default refresh
// period: every consumed symbol. Larger intervals trade noise headroom
// for throughput.
const DefaultBootstrapInterval = 1

// OnlineQTRLWERunner streams the input forward, maintaining one
// occupancy weight vector per state: slot 0 of weights[v] holds the
// {0, Q/4} indicator of the run currently being at v. Transitions are
// routed additively through CMUX; exactly one state is hot at a time
// because the automaton is deterministic.
type OnlineQTRLWERunner struct {
	stopFlag

	graph *Graph
	eval  *Evaluator

	interval  int
	processed int

	weights []*TRLWE
	zero    *TRLWE
}

// OnlineOptions tunes the forward online runners.
type OnlineOptions struct {
	// BootstrapInterval refreshes the weights after this many steps.
	// Zero selects DefaultBootstrapInterval; negative is rejected.
	BootstrapInterval int
}

// NewOnlineQTRLWERunner builds the per-state forward runner. A gate
// key is required: the occupancy sums are thresholded on output and
// refreshed periodically.
func NewOnlineQTRLWERunner(g *Graph, eval *Evaluator, opts OnlineOptions) (*OnlineQTRLWERunner, error) {
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

	min := g.Minimized()
	r := &OnlineQTRLWERunner{
		graph:    min,
		eval:     eval,
		interval: interval,
		weights:  make([]*TRLWE, min.NumStates()),
		zero:     eval.TrivialZero(),
	}
	for v := range r.weights {
		if v == min.Init() {
			r.weights[v] = eval.TrivialMask([]int{0})
		} else {
			r.weights[v] = eval.TrivialZero()
		}
	}
	return r, nil
}

// SizeHint reports an unbounded stream.
func (r *OnlineQTRLWERunner) SizeHint() int { return -1 }

// Step routes every state's occupancy through the encrypted input bit:
// the bit-0 share of weights[u] flows to child0(u), the remainder to
// child1(u).
func (r *OnlineQTRLWERunner) Step(ap *APBit) error {
	if err := r.check(); err != nil {
		return err
	}

	r.weights = advanceOccupancy(r.eval, r.graph, r.weights, r.zero, ap)
	r.processed++

	if r.processed%r.interval == 0 {
		return r.refresh()
	}
	return nil
}

// advanceOccupancy routes per-state occupancy weights through one
// encrypted input bit: the bit-0 share of weights[u] flows to
// child0(u), the remainder to child1(u). O(|V|) CMUX, O(|E|) adds.
func advanceOccupancy(eval *Evaluator, g *Graph, weights []*TRLWE, zero *TRLWE, ap *APBit) []*TRLWE {
	n := g.NumStates()
	share0 := make([]*TRLWE, n)
	share1 := make([]*TRLWE, n)
	parallelStates(eval, n, func(w *Evaluator, u int) {
		share0[u] = w.CMUX(ap.G, zero, weights[u])
		s1 := w.TrivialZero()
		w.Sub(weights[u], share0[u], s1)
		share1[u] = s1
	})

	next := make([]*TRLWE, n)
	for v := range next {
		next[v] = eval.TrivialZero()
	}
	for u := 0; u < n; u++ {
		c0 := g.Child(u, 0)
		eval.Add(next[c0], share0[u], next[c0])
		c1 := g.Child(u, 1)
		eval.Add(next[c1], share1[u], next[c1])
	}
	return next
}

// refresh re-encodes every occupancy weight through the gate key.
func (r *OnlineQTRLWERunner) refresh() error {
	errs := make([]error, len(r.weights))
	parallelStates(r.eval, len(r.weights), func(w *Evaluator, v int) {
		fresh, err := w.RefreshMaskWeight(r.weights[v])
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

// Result sums the final-state occupancies and thresholds the sum into
// a sign-encoded acceptance bit.
func (r *OnlineQTRLWERunner) Result() (*TLWE, error) {
	acc := r.eval.TrivialZero()
	for v := 0; v < r.graph.NumStates(); v++ {
		if r.graph.IsFinal(v) {
			r.eval.Add(acc, r.weights[v], acc)
		}
	}
	return r.eval.ThresholdBit(r.eval.Extract(acc, 0))
}
