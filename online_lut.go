// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"fmt"
	"log"
)

// Default tuning for the batched LUT runner.
const (
	DefaultQueueSize     = 10
	DefaultFirstLUTDepth = 8
)

// OnlineLUTRunner buffers a window of q = d1 + d2 AP-Bits and resolves
// the whole window with a two-level look-up table, amortizing
// bootstrapping over the window instead of paying it per symbol.
//
// Per window: the 2^d1 prefixes of the window are enumerated in
// plaintext and packed into TRLWE slots against the current occupancy
// vector; the d2 upper bits are circuit-bootstrapped into TRGSW and
// resolve the packed tables through a CMUX tree; the d1 lower bits
// then rotate the selected table so the answer lands in slot 0.
// Inputs shorter than a full window produce no output.
type OnlineLUTRunner struct {
	stopFlag

	graph *Graph
	eval  *Evaluator

	q, d1, d2 int

	queue   []*APBit
	occ     []*TRLWE
	zero    *TRLWE
	lastOut *TLWE
	windows int

	dbg    *Decryptor
	logger *log.Logger
}

// LUTOptions tunes the batched LUT runner.
type LUTOptions struct {
	// QueueSize is the window length q. Zero selects DefaultQueueSize.
	QueueSize int
	// FirstLUTDepth is d1, the plaintext-enumerated depth. Zero
	// selects DefaultFirstLUTDepth, capped so that d2 = q - d1 >= 1.
	FirstLUTDepth int
	// DebugKey enables diagnostic decryption of per-window outputs.
	// Never supply it in production runs.
	DebugKey *SecretKey
	// DebugLogger receives the diagnostics when DebugKey is set.
	DebugLogger *log.Logger
}

// NewOnlineLUTRunner builds the batched LUT runner. The evaluator must
// carry the full composite bootstrapping key: gate, circuit and
// identity key-switch material.
func NewOnlineLUTRunner(g *Graph, eval *Evaluator, opts LUTOptions) (*OnlineLUTRunner, error) {
	q := opts.QueueSize
	if q == 0 {
		q = DefaultQueueSize
	}
	d1 := opts.FirstLUTDepth
	if d1 == 0 {
		d1 = DefaultFirstLUTDepth
		if d1 > q-1 {
			d1 = q - 1
		}
	}
	d2 := q - d1

	if q < 2 {
		return nil, fmt.Errorf("%w: queue size %d < 2", ErrBadConfig, q)
	}
	if d1 < 1 || d2 < 1 {
		return nil, fmt.Errorf("%w: first-LUT depth %d leaves no second level in a queue of %d", ErrBadConfig, d1, q)
	}
	if 1<<uint(d1) > eval.Parameters().N() {
		return nil, fmt.Errorf("%w: first-LUT depth %d exceeds the %d TRLWE slots", ErrBadConfig, d1, eval.Parameters().N())
	}
	if !eval.CanCircuitBootstrap() || !eval.CanKeySwitch() {
		return nil, fmt.Errorf("%w: batched LUT evaluation requires the composite bootstrapping key", ErrBadKey)
	}

	min := g.Minimized()
	r := &OnlineLUTRunner{
		graph:  min,
		eval:   eval,
		q:      q,
		d1:     d1,
		d2:     d2,
		queue:  make([]*APBit, 0, q),
		occ:    make([]*TRLWE, min.NumStates()),
		zero:   eval.TrivialZero(),
		logger: opts.DebugLogger,
	}
	for v := range r.occ {
		if v == min.Init() {
			r.occ[v] = eval.TrivialMask([]int{0})
		} else {
			r.occ[v] = eval.TrivialZero()
		}
	}
	if opts.DebugKey != nil {
		r.dbg = NewDecryptor(eval.Parameters(), opts.DebugKey)
	}
	return r, nil
}

// SizeHint reports an unbounded stream.
func (r *OnlineLUTRunner) SizeHint() int { return -1 }

// Step queues one AP-Bit; a full queue triggers window resolution.
func (r *OnlineLUTRunner) Step(ap *APBit) error {
	if err := r.check(); err != nil {
		return err
	}
	r.queue = append(r.queue, ap)
	if len(r.queue) < r.q {
		return nil
	}
	if err := r.resolveWindow(); err != nil {
		return err
	}
	r.queue = r.queue[:0]
	return nil
}

// resolveWindow runs the two-level LUT over the queued window and
// advances the occupancy vector past it.
func (r *OnlineLUTRunner) resolveWindow() error {
	g := r.graph
	n := g.NumStates()

	// Occupancy bits re-embedded into TRLWE slot-0 form, composing the
	// reachable-state vector with the table masks below.
	seed := make([]*TRLWE, n)
	for v := 0; v < n; v++ {
		t, err := r.eval.IdentityKeySwitch(r.eval.Extract(r.occ[v], 0))
		if err != nil {
			return err
		}
		seed[v] = t
	}

	// First level: for every suffix branch, one packed table whose
	// slot p answers "accepting after prefix p then this suffix",
	// accumulated from the plaintext window walks of every state.
	tables := make([]*TRLWE, 1<<uint(r.d2))
	for s := range tables {
		t := r.eval.TrivialZero()
		for v := 0; v < n; v++ {
			var slots []int
			for p := 0; p < 1<<uint(r.d1); p++ {
				path := uint64(s)<<uint(r.d1) | uint64(p)
				if g.IsFinal(g.Walk(v, path, r.q)) {
					slots = append(slots, p)
				}
			}
			if len(slots) > 0 {
				r.eval.MulPlainPoly(seed[v], r.eval.MaskPoly(slots), t)
			}
		}
		tables[s] = t
	}

	// Second level: circuit-bootstrap the d2 upper bits into CMUX
	// selectors and halve the table set per level.
	for i := 0; i < r.d2; i++ {
		sel, err := r.eval.CircuitBootstrap(r.queue[r.d1+i].L)
		if err != nil {
			return err
		}
		next := make([]*TRLWE, len(tables)/2)
		parallelStates(r.eval, len(next), func(w *Evaluator, j int) {
			next[j] = w.CMUX(sel, tables[2*j+1], tables[2*j])
		})
		tables = next
	}
	t := tables[0]

	// The d1 lower bits rotate the surviving table so the selected
	// prefix slot lands in slot 0.
	for i := 0; i < r.d1; i++ {
		t = r.eval.CMUX(r.queue[i].G, r.eval.Rotate(t, -(1<<uint(i))), t)
	}

	out, err := r.eval.ThresholdBit(r.eval.Extract(t, 0))
	if err != nil {
		return err
	}
	r.lastOut = out
	r.windows++

	if r.dbg != nil && r.logger != nil {
		r.logger.Printf("lut window %d: acceptance=%v", r.windows, r.dbg.DecryptBit(out))
	}

	// Slide: advance the occupancy vector through the window bits and
	// refresh it before the next window accumulates on top.
	for i := 0; i < r.q; i++ {
		r.occ = advanceOccupancy(r.eval, g, r.occ, r.zero, r.queue[i])
	}
	errs := make([]error, n)
	parallelStates(r.eval, n, func(w *Evaluator, v int) {
		fresh, err := w.RefreshMaskWeight(r.occ[v])
		if err != nil {
			errs[v] = err
			return
		}
		r.occ[v] = fresh
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Result returns the acceptance bit of the last resolved window.
// Queued AP-Bits short of a full window contribute no output.
func (r *OnlineLUTRunner) Result() (*TLWE, error) {
	if r.lastOut == nil {
		return nil, fmt.Errorf("no acceptance bit available: %d AP-Bits queued, window is %d", len(r.queue), r.q)
	}
	return r.lastOut, nil
}
