// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package dfa evaluates deterministic finite automata over streams of
// encrypted bits. The automaton and the evaluator never observe a
// plaintext input: each atomic proposition arrives as a TRGSW
// ciphertext, state weights are carried as TRLWE polynomials, and the
// acceptance bit leaves the engine as a TLWE ciphertext that only the
// secret-key holder can open.
//
// The torus scheme itself (TLWE/TRLWE/TRGSW, external products, blind
// rotation) is provided by lattigo primitives; this package wraps
// them into the three operations the automaton engine needs: CMUX
// selection, gate bootstrapping and circuit bootstrapping.
package dfa

import (
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/utils"
)

// Parameters bundles the RLWE parameter set shared by all ciphertext
// forms with the evaluation-key decomposition used for blind rotation
// and key switching. A single ring is used for the LWE and the blind
// rotation level, so sample extraction needs no dimension switch.
type Parameters struct {
	rlweParams rlwe.Parameters
	evkParams  rlwe.EvaluationKeyParameters
	baseTwo    int
}

// ParametersLiteral is a user-friendly parameter specification.
type ParametersLiteral struct {
	// LogN is log2 of the ring degree; the TRLWE slot count is 2^LogN.
	LogN int
	// Q is the ciphertext modulus, an NTT-friendly prime (Q ≡ 1 mod 2N).
	Q uint64
	// BaseTwoDecomposition is the gadget base for evaluation keys and
	// TRGSW external products.
	BaseTwoDecomposition int
}

var (
	// ParamsN10 is the default parameter set: N=1024, Q≈2^27.
	ParamsN10 = ParametersLiteral{
		LogN:                 10,
		Q:                    0x7fff801, // ~134M, ≡ 1 mod 2^11
		BaseTwoDecomposition: 7,
	}

	// ParamsN11 trades speed for precision: N=2048, Q≈2^58. Use when
	// long bootstrap-free CMUX chains (large offline inputs with no
	// gate key) need the extra noise headroom.
	ParamsN11 = ParametersLiteral{
		LogN:                 11,
		Q:                    0x3FFFFFFFFFC0001,
		BaseTwoDecomposition: 10,
	}
)

// NewParametersFromLiteral creates Parameters from a literal specification.
func NewParametersFromLiteral(lit ParametersLiteral) (params Parameters, err error) {
	params.rlweParams, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    lit.LogN,
		Q:       []uint64{lit.Q},
		NTTFlag: true,
	})
	if err != nil {
		return Parameters{}, err
	}

	params.evkParams = rlwe.EvaluationKeyParameters{
		BaseTwoDecomposition: utils.Pointy(lit.BaseTwoDecomposition),
	}
	params.baseTwo = lit.BaseTwoDecomposition

	return params, nil
}

// N returns the ring degree, which is also the TRLWE slot count.
func (p Parameters) N() int {
	return p.rlweParams.N()
}

// Q returns the ciphertext modulus.
func (p Parameters) Q() uint64 {
	return p.rlweParams.Q()[0]
}

// RingQ returns the underlying polynomial ring.
func (p Parameters) RingQ() *ring.Ring {
	return p.rlweParams.RingQ()
}

// RLWEParameters exposes the wrapped lattice parameters.
func (p Parameters) RLWEParameters() rlwe.Parameters {
	return p.rlweParams
}

// MaxLevel returns the maximum RNS level (always 0 for a single prime,
// kept as a method so ciphertext constructors read naturally).
func (p Parameters) MaxLevel() int {
	return p.rlweParams.MaxLevel()
}

// muTrue returns the torus encoding of a true bit (+Q/8). False is
// encoded as -Q/8; the sign test polynomial separates the two after
// arbitrary CMUX routing.
func (p Parameters) muTrue() uint64 {
	return p.Q() / 8
}

// muFalse returns the torus encoding of a false bit (-Q/8 mod Q).
func (p Parameters) muFalse() uint64 {
	return p.Q() - p.Q()/8
}

// muMask returns the occupancy encoding of a live state (Q/4). Absent
// states are encoded as 0 so that additive transition routing keeps
// exactly one slot hot.
func (p Parameters) muMask() uint64 {
	return p.Q() / 4
}
