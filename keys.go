// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"math/bits"

	"github.com/tuneinsight/lattigo/v6/core/rgsw/blindrot"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
)

// SecretKey is the single ring secret key under which every ciphertext
// form (TLWE, TRLWE, TRGSW) lives. Read-only after generation.
type SecretKey struct {
	SK *rlwe.SecretKey
}

// GateKey carries the blind rotation key and the test polynomials used
// for gate bootstrapping. It is shared read-only by all runners in a
// run; offline runs without one simply accumulate noise, and the
// online runners refuse to start without one.
type GateKey struct {
	// BRK holds RGSW encryptions of the secret key bits.
	BRK blindrot.MemBlindRotationEvaluationKeySet
	// TestPolySign refreshes a sign-encoded bit (±Q/8 -> ±Q/8).
	TestPolySign *ring.Poly
	// TestPolyMask thresholds an occupancy sum ({0, Q/4} -> ±Q/8).
	TestPolyMask *ring.Poly
}

// CircuitKey carries the material for circuit bootstrapping a TLWE
// into a TRGSW: one test polynomial per gadget digit and the
// scheme-switch key that produces the secret-key-multiplied rows.
type CircuitKey struct {
	// SchemeSwitch switches a ciphertext under s·s back under s,
	// realizing multiplication of the encrypted message by s.
	SchemeSwitch *rlwe.EvaluationKey
	// TestPolyDigit[j] maps a sign-encoded bit to ±B^j/2; the
	// evaluator's B^j/2 offset turns that into m·B^j, the j-th
	// ascending gadget power.
	TestPolyDigit []*ring.Poly
}

// IKSKey re-encrypts an extracted TLWE into a TRLWE whose plaintext is
// concentrated in slot 0 (a scalar key switch, not a polynomial one:
// the other slots carry noise only, which the LUT packing relies on).
// Rows[k][d] encrypts s_k·B^d as a constant polynomial. Only the
// batched LUT runner needs this key.
type IKSKey struct {
	Rows [][]*rlwe.Ciphertext
	Base int
}

// BootstrapKey is the composite archive record handed to online
// runners: the gate key plus the circuit-bootstrap and identity
// key-switch material.
type BootstrapKey struct {
	Gate    *GateKey
	Circuit *CircuitKey
	IKS     *IKSKey
}

// KeyGenerator generates the engine's key material.
type KeyGenerator struct {
	params Parameters
	kgen   *rlwe.KeyGenerator
	ringQ  *ring.Ring
}

// NewKeyGenerator creates a new key generator.
func NewKeyGenerator(params Parameters) *KeyGenerator {
	return &KeyGenerator{
		params: params,
		kgen:   rlwe.NewKeyGenerator(params.rlweParams),
		ringQ:  params.RingQ(),
	}
}

// GenSecretKey generates a fresh secret key.
func (kg *KeyGenerator) GenSecretKey() *SecretKey {
	return &SecretKey{SK: kg.kgen.GenSecretKeyNew()}
}

// GenGateKey generates the gate bootstrapping key from a secret key.
func (kg *KeyGenerator) GenGateKey(sk *SecretKey) *GateKey {
	brk := blindrot.GenEvaluationKeyNew(
		kg.params.rlweParams, sk.SK,
		kg.params.rlweParams, sk.SK,
		kg.params.evkParams)

	scale := rlwe.NewScale(float64(kg.params.Q()) / 8.0)

	// Sign-encoded bits sit at ±Q/8, i.e. x = ±0.25 on the [-1, 1]
	// normalized torus. The sign polynomial refreshes them.
	sign := blindrot.InitTestPolynomial(func(x float64) float64 {
		if x >= 0 {
			return 1.0
		}
		return -1.0
	}, scale, kg.ringQ, -1, 1)

	// Occupancy sums are 0 or Q/4 (x = 0 or 0.5); the threshold at
	// 0.25 converts them to a sign-encoded bit.
	mask := blindrot.InitTestPolynomial(func(x float64) float64 {
		if x >= 0.25 {
			return 1.0
		}
		return -1.0
	}, scale, kg.ringQ, -1, 1)

	return &GateKey{
		BRK:          brk,
		TestPolySign: &sign,
		TestPolyMask: &mask,
	}
}

// GenCircuitKey generates the circuit bootstrapping key.
func (kg *KeyGenerator) GenCircuitKey(sk *SecretKey) *CircuitKey {
	// Scheme-switch key: an evaluation key from s·s to s. Applying it
	// to (0, c) yields an encryption of c·s² under s, which combined
	// with (0, c0) gives the s·m rows of the output TRGSW.
	skSq := rlwe.NewSecretKey(kg.params.rlweParams)
	kg.ringQ.MulCoeffsMontgomery(sk.SK.Value.Q, sk.SK.Value.Q, skSq.Value.Q)

	evk := kg.kgen.GenEvaluationKeyNew(skSq, sk.SK, kg.params.evkParams)

	digits := gadgetDigits(kg.params)
	polys := make([]*ring.Poly, digits)
	for j := 0; j < digits; j++ {
		// Half-amplitude sign polynomial per digit; the evaluator adds
		// the other half back so row j encodes m·B^j, matching the
		// ascending base-2^w gadget the external product decomposes
		// against.
		delta := float64(uint64(1) << (j * kg.params.baseTwo))
		scale := rlwe.NewScale(delta / 2.0)
		poly := blindrot.InitTestPolynomial(func(x float64) float64 {
			if x >= 0 {
				return 1.0
			}
			return -1.0
		}, scale, kg.ringQ, -1, 1)
		polys[j] = &poly
	}

	return &CircuitKey{SchemeSwitch: evk, TestPolyDigit: polys}
}

// GenIKSKey generates the identity key-switch key used to re-embed an
// extracted TLWE into TRLWE slot 0: one constant-polynomial encryption
// of s_k·B^d per secret coefficient and gadget digit.
func (kg *KeyGenerator) GenIKSKey(sk *SecretKey) *IKSKey {
	params := kg.params
	n := params.N()
	q := params.Q()
	digits := gadgetDigits(params)

	// Secret coefficients, out of the NTT/Montgomery domain.
	sCoeffs := kg.ringQ.NewPoly()
	sCoeffs.CopyLvl(params.MaxLevel(), sk.SK.Value.Q)
	kg.ringQ.IMForm(sCoeffs, sCoeffs)
	kg.ringQ.INTT(sCoeffs, sCoeffs)

	enc := rlwe.NewEncryptor(params.rlweParams, sk.SK)

	rows := make([][]*rlwe.Ciphertext, n)
	for k := 0; k < n; k++ {
		rows[k] = make([]*rlwe.Ciphertext, digits)
		for d := 0; d < digits; d++ {
			pt := rlwe.NewPlaintext(params.rlweParams, params.MaxLevel())
			pt.Value.Coeffs[0][0] = mulMod(sCoeffs.Coeffs[0][k], deltaDigit(params, d), q)
			kg.ringQ.NTT(pt.Value, pt.Value)
			pt.IsNTT = true

			ct := newCiphertext(params)
			if err := enc.Encrypt(pt, ct); err != nil {
				panic(err) // fresh key material, cannot fail
			}
			rows[k][d] = ct
		}
	}

	return &IKSKey{Rows: rows, Base: params.baseTwo}
}

// mulMod returns a·b mod q without overflowing.
func mulMod(a, b, q uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, rem := bits.Div64(hi%q, lo, q)
	return rem
}

// GenBootstrapKey generates the composite record online runners load.
func (kg *KeyGenerator) GenBootstrapKey(sk *SecretKey) *BootstrapKey {
	return &BootstrapKey{
		Gate:    kg.GenGateKey(sk),
		Circuit: kg.GenCircuitKey(sk),
		IKS:     kg.GenIKSKey(sk),
	}
}

// gadgetDigits returns the number of base-2^w digits covering Q.
func gadgetDigits(params Parameters) int {
	qBits := bits.Len64(params.Q() - 1)
	return (qBits + params.baseTwo - 1) / params.baseTwo
}
