// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rgsw"
	"github.com/tuneinsight/lattigo/v6/core/rgsw/blindrot"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
)

// Evaluator provides the homomorphic primitives the runners are built
// from: CMUX selection, TRLWE arithmetic, slot extraction, gate and
// circuit bootstrapping, and the identity key switch.
//
// The evaluator never sees the secret key. Key material is borrowed
// read-only for the evaluator's lifetime; a nil BootstrapKey (or a
// partial one) disables the corresponding operations, which then
// report ErrBadKey.
type Evaluator struct {
	params Parameters

	gate    *GateKey
	circuit *CircuitKey
	iks     *IKSKey

	rgswEval *rgsw.Evaluator
	brEval   *blindrot.Evaluator
	ksEval   *rlwe.Evaluator
	ringQ    *ring.Ring

	// The blind rotation evaluator shares one accumulator; bootstraps
	// are serialized while CMUX work stays parallel via Fork.
	brMu *sync.Mutex
}

// NewEvaluator creates an evaluator borrowing the given key material.
// bkey may be nil for bootstrap-free offline evaluation.
func NewEvaluator(params Parameters, bkey *BootstrapKey) *Evaluator {
	eval := &Evaluator{
		params:   params,
		rgswEval: rgsw.NewEvaluator(params.rlweParams, nil),
		brEval:   blindrot.NewEvaluator(params.rlweParams, params.rlweParams),
		ksEval:   rlwe.NewEvaluator(params.rlweParams, nil),
		ringQ:    params.RingQ(),
		brMu:     &sync.Mutex{},
	}
	if bkey != nil {
		eval.gate = bkey.Gate
		eval.circuit = bkey.Circuit
		eval.iks = bkey.IKS
	}
	return eval
}

// NewEvaluatorWithGateKey creates an evaluator that can gate-bootstrap
// but not circuit-bootstrap, the configuration offline runs use.
func NewEvaluatorWithGateKey(params Parameters, gkey *GateKey) *Evaluator {
	eval := NewEvaluator(params, nil)
	eval.gate = gkey
	return eval
}

// Fork returns an evaluator sharing keys and parameters but with its
// own external-product buffers, for use by one worker goroutine.
func (eval *Evaluator) Fork() *Evaluator {
	cp := *eval
	cp.rgswEval = eval.rgswEval.ShallowCopy()
	return &cp
}

// Parameters returns the parameter set the evaluator operates under.
func (eval *Evaluator) Parameters() Parameters {
	return eval.params
}

// CanBootstrap reports whether a gate key is present.
func (eval *Evaluator) CanBootstrap() bool {
	return eval.gate != nil
}

// CanCircuitBootstrap reports whether circuit bootstrapping material
// is present.
func (eval *Evaluator) CanCircuitBootstrap() bool {
	return eval.gate != nil && eval.circuit != nil
}

// CanKeySwitch reports whether the identity key-switch key is present.
func (eval *Evaluator) CanKeySwitch() bool {
	return eval.iks != nil
}

// MaskPoly builds the plaintext 0/1 polynomial with ones at the given
// slots, in coefficient form as MulPlainPoly expects.
func (eval *Evaluator) MaskPoly(slots []int) ring.Poly {
	p := eval.ringQ.NewPoly()
	for _, s := range slots {
		p.Coeffs[0][s] = 1
	}
	return p
}

// TrivialBit returns a noiseless weight vector encoding the given bit
// in every slot (±Q/8 sign encoding).
func (eval *Evaluator) TrivialBit(b bool) *TRLWE {
	mu := eval.params.muFalse()
	if b {
		mu = eval.params.muTrue()
	}
	ct := newCiphertext(eval.params)
	coeffs := ct.Value[0].Coeffs[0]
	for i := range coeffs {
		coeffs[i] = mu
	}
	eval.ringQ.NTT(ct.Value[0], ct.Value[0])
	return &TRLWE{ct}
}

// TrivialMask returns a noiseless occupancy vector with Q/4 in the
// given slots and 0 elsewhere.
func (eval *Evaluator) TrivialMask(slots []int) *TRLWE {
	ct := newCiphertext(eval.params)
	mu := eval.params.muMask()
	for _, s := range slots {
		ct.Value[0].Coeffs[0][s] = mu
	}
	eval.ringQ.NTT(ct.Value[0], ct.Value[0])
	return &TRLWE{ct}
}

// TrivialZero returns the all-zero occupancy vector.
func (eval *Evaluator) TrivialZero() *TRLWE {
	return &TRLWE{newCiphertext(eval.params)}
}

// Add sets out = a + b slot-wise.
func (eval *Evaluator) Add(a, b, out *TRLWE) {
	eval.ringQ.Add(a.Value[0], b.Value[0], out.Value[0])
	eval.ringQ.Add(a.Value[1], b.Value[1], out.Value[1])
	out.IsNTT = a.IsNTT
}

// Sub sets out = a - b slot-wise.
func (eval *Evaluator) Sub(a, b, out *TRLWE) {
	eval.ringQ.Sub(a.Value[0], b.Value[0], out.Value[0])
	eval.ringQ.Sub(a.Value[1], b.Value[1], out.Value[1])
	out.IsNTT = a.IsNTT
}

// mulMonomial multiplies both ciphertext components by X^k in the NTT
// domain. k is taken mod 2N; X^(2N-k) realizes X^(-k).
func (eval *Evaluator) mulMonomial(ct *rlwe.Ciphertext, k int, out *rlwe.Ciphertext) {
	twoN := eval.params.N() << 1
	k = ((k % twoN) + twoN) % twoN
	xk := eval.ringQ.NewMonomialXi(k)
	eval.ringQ.NTT(xk, xk)
	eval.ringQ.MForm(xk, xk)
	eval.ringQ.MulCoeffsMontgomery(ct.Value[0], xk, out.Value[0])
	eval.ringQ.MulCoeffsMontgomery(ct.Value[1], xk, out.Value[1])
	out.IsNTT = ct.IsNTT
}

// Rotate returns t with every slot moved up by k positions (slot i of
// the result is slot i-k of t, with negacyclic wrap).
func (eval *Evaluator) Rotate(t *TRLWE, k int) *TRLWE {
	out := newCiphertext(eval.params)
	eval.mulMonomial(t.Ciphertext, k, out)
	return &TRLWE{out}
}

// MulPlainPoly adds mask·t to out, where mask is a plaintext 0/1
// polynomial in coefficient form.
func (eval *Evaluator) MulPlainPoly(t *TRLWE, mask ring.Poly, out *TRLWE) {
	m := eval.ringQ.NewPoly()
	eval.ringQ.NTT(mask, m)
	eval.ringQ.MForm(m, m)
	tmp := newCiphertext(eval.params)
	eval.ringQ.MulCoeffsMontgomery(t.Value[0], m, tmp.Value[0])
	eval.ringQ.MulCoeffsMontgomery(t.Value[1], m, tmp.Value[1])
	eval.ringQ.Add(out.Value[0], tmp.Value[0], out.Value[0])
	eval.ringQ.Add(out.Value[1], tmp.Value[1], out.Value[1])
}

// CMUX returns sel ? a : b using one external product:
// b + sel ⊡ (a - b).
func (eval *Evaluator) CMUX(sel *TRGSW, a, b *TRLWE) *TRLWE {
	diff := newCiphertext(eval.params)
	eval.ringQ.Sub(a.Value[0], b.Value[0], diff.Value[0])
	eval.ringQ.Sub(a.Value[1], b.Value[1], diff.Value[1])
	eval.rgswEval.ExternalProduct(diff, sel.Ciphertext, diff)
	eval.ringQ.Add(diff.Value[0], b.Value[0], diff.Value[0])
	eval.ringQ.Add(diff.Value[1], b.Value[1], diff.Value[1])
	return &TRLWE{diff}
}

// Extract moves the given slot of a weight vector into slot 0 and
// returns the result as an acceptance-bit ciphertext. The remaining
// slots are unspecified.
func (eval *Evaluator) Extract(t *TRLWE, slot int) *TLWE {
	if slot == 0 {
		return &TLWE{t.Ciphertext.CopyNew()}
	}
	out := newCiphertext(eval.params)
	eval.mulMonomial(t.Ciphertext, -slot, out)
	return &TLWE{out}
}

// bootstrap runs one blind rotation of ct against the given test
// polynomial and returns the slot-0 result.
func (eval *Evaluator) bootstrap(ct *rlwe.Ciphertext, testPoly *ring.Poly) (*rlwe.Ciphertext, error) {
	if eval.gate == nil {
		return nil, fmt.Errorf("%w: gate bootstrapping requested without a gate key", ErrBadKey)
	}

	eval.brMu.Lock()
	defer eval.brMu.Unlock()

	res, err := eval.brEval.Evaluate(ct, map[int]*ring.Poly{0: testPoly}, eval.gate.BRK)
	if err != nil {
		return nil, fmt.Errorf("blind rotation: %w", err)
	}
	out, ok := res[0]
	if !ok {
		return nil, fmt.Errorf("blind rotation: no slot 0 result")
	}
	return out, nil
}

// RefreshBit gate-bootstraps a sign-encoded acceptance bit, resetting
// its noise.
func (eval *Evaluator) RefreshBit(ct *TLWE) (*TLWE, error) {
	if eval.gate == nil {
		return nil, fmt.Errorf("%w: gate bootstrapping requested without a gate key", ErrBadKey)
	}
	out, err := eval.bootstrap(ct.Ciphertext, eval.gate.TestPolySign)
	if err != nil {
		return nil, err
	}
	return &TLWE{out}, nil
}

// RefreshWeight gate-bootstraps slot 0 of a weight vector back into a
// fresh weight vector (slot 0 sign-encoded, other slots unspecified).
func (eval *Evaluator) RefreshWeight(t *TRLWE) (*TRLWE, error) {
	if eval.gate == nil {
		return nil, fmt.Errorf("%w: gate bootstrapping requested without a gate key", ErrBadKey)
	}
	out, err := eval.bootstrap(t.Ciphertext, eval.gate.TestPolySign)
	if err != nil {
		return nil, err
	}
	return &TRLWE{out}, nil
}

// RefreshMaskWeight gate-bootstraps slot 0 of an occupancy vector back
// into a fresh {0, Q/4} encoding: the threshold polynomial yields
// ±Q/8 and the trivial Q/8 offset recenters it.
func (eval *Evaluator) RefreshMaskWeight(t *TRLWE) (*TRLWE, error) {
	if eval.gate == nil {
		return nil, fmt.Errorf("%w: gate bootstrapping requested without a gate key", ErrBadKey)
	}
	out, err := eval.bootstrap(t.Ciphertext, eval.gate.TestPolyMask)
	if err != nil {
		return nil, err
	}
	eval.addScalarSlot0(out, eval.params.Q()/8)
	return &TRLWE{out}, nil
}

// ThresholdBit gate-bootstraps an occupancy sum ({0, Q/4} in slot 0)
// into a sign-encoded acceptance bit.
func (eval *Evaluator) ThresholdBit(ct *TLWE) (*TLWE, error) {
	if eval.gate == nil {
		return nil, fmt.Errorf("%w: gate bootstrapping requested without a gate key", ErrBadKey)
	}
	out, err := eval.bootstrap(ct.Ciphertext, eval.gate.TestPolyMask)
	if err != nil {
		return nil, err
	}
	return &TLWE{out}, nil
}

// IdentityKeySwitch re-embeds the slot-0 value of an acceptance bit
// into a TRLWE concentrated in slot 0. The LWE sample under the
// coefficient view of the key is rebuilt digit by digit against the
// IKS rows; all message mass lands in the constant term, so the
// result can be shifted into arbitrary slots by plaintext masks.
func (eval *Evaluator) IdentityKeySwitch(ct *TLWE) (*TRLWE, error) {
	if eval.iks == nil {
		return nil, fmt.Errorf("%w: identity key switch requested without an IKS key", ErrBadKey)
	}

	n := eval.params.N()
	q := eval.params.Q()

	c0 := eval.ringQ.NewPoly()
	c1 := eval.ringQ.NewPoly()
	c0.CopyLvl(eval.params.MaxLevel(), ct.Value[0])
	c1.CopyLvl(eval.params.MaxLevel(), ct.Value[1])
	if ct.IsNTT {
		eval.ringQ.INTT(c0, c0)
		eval.ringQ.INTT(c1, c1)
	}

	// LWE view of coefficient 0: m = b + Σ_k a_k·s_k with a_0 = c1[0]
	// and a_k = -c1[N-k] from the negacyclic convolution.
	b := c0.Coeffs[0][0]
	a := make([]uint64, n)
	a[0] = c1.Coeffs[0][0]
	for k := 1; k < n; k++ {
		v := c1.Coeffs[0][n-k]
		if v != 0 {
			v = q - v
		}
		a[k] = v
	}

	// out starts as the trivial constant b.
	out := newCiphertext(eval.params)
	coeffs := out.Value[0].Coeffs[0]
	for i := range coeffs {
		coeffs[i] = b
	}

	base := eval.iks.Base
	mask := uint64(1)<<uint(base) - 1
	tmp := newCiphertext(eval.params)
	for k := 0; k < n; k++ {
		for d, row := range eval.iks.Rows[k] {
			dig := (a[k] >> uint(d*base)) & mask
			if dig == 0 {
				continue
			}
			eval.ringQ.MulScalar(row.Value[0], dig, tmp.Value[0])
			eval.ringQ.MulScalar(row.Value[1], dig, tmp.Value[1])
			eval.ringQ.Add(out.Value[0], tmp.Value[0], out.Value[0])
			eval.ringQ.Add(out.Value[1], tmp.Value[1], out.Value[1])
		}
	}

	return &TRLWE{out}, nil
}

// addScalarSlot0 adds a constant to the encoded message. The
// ciphertext is in the NTT domain, where a constant polynomial has the
// constant replicated in every NTT coefficient.
func (eval *Evaluator) addScalarSlot0(ct *rlwe.Ciphertext, c uint64) {
	q := eval.params.Q()
	coeffs := ct.Value[0].Coeffs[0]
	for i := range coeffs {
		coeffs[i] = (coeffs[i] + c) % q
	}
}

// CircuitBootstrap converts a sign-encoded acceptance bit into a TRGSW
// usable as a CMUX selector: one blind rotation per gadget digit for
// the m·g rows, and the scheme-switch key for the s·m·g rows.
func (eval *Evaluator) CircuitBootstrap(ct *TLWE) (*TRGSW, error) {
	if eval.gate == nil || eval.circuit == nil {
		return nil, fmt.Errorf("%w: circuit bootstrapping requested without gate and circuit keys", ErrBadKey)
	}

	params := eval.params.rlweParams
	out := rgsw.NewCiphertext(params, params.MaxLevelQ(), params.MaxLevelP(), eval.params.baseTwo)

	digits := out.Value[0].BaseTwoDecompositionVectorSize()[0]
	if digits > len(eval.circuit.TestPolyDigit) {
		digits = len(eval.circuit.TestPolyDigit)
	}

	for j := 0; j < digits; j++ {
		row, err := eval.bootstrap(ct.Ciphertext, eval.circuit.TestPolyDigit[j])
		if err != nil {
			return nil, err
		}

		// row encrypts ±Δ/2; shift to m·Δ with Δ = B^j.
		eval.addScalarSlot0(row, deltaDigit(eval.params, j)/2)

		// s·m·Δ rows: (0, c0) + KS((0, c1)) under the s²→s key.
		t1 := newCiphertext(eval.params)
		t1.Value[1].CopyLvl(eval.params.MaxLevel(), row.Value[1])
		if err := eval.ksEval.ApplyEvaluationKey(t1, eval.circuit.SchemeSwitch, t1); err != nil {
			return nil, fmt.Errorf("scheme switch: %w", err)
		}
		t2 := newCiphertext(eval.params)
		t2.Value[1].CopyLvl(eval.params.MaxLevel(), row.Value[0])
		eval.ringQ.Add(t1.Value[0], t2.Value[0], t1.Value[0])
		eval.ringQ.Add(t1.Value[1], t2.Value[1], t1.Value[1])

		// Gadget rows are stored in NTT/Montgomery form.
		storeGadgetRow(eval.ringQ, out.Value[0], j, row)
		storeGadgetRow(eval.ringQ, out.Value[1], j, t1)
	}

	return &TRGSW{out}, nil
}

// storeGadgetRow writes a degree-1 ciphertext into digit j of a gadget
// ciphertext, applying the Montgomery form external products expect.
func storeGadgetRow(ringQ *ring.Ring, gct rlwe.GadgetCiphertext, j int, row *rlwe.Ciphertext) {
	ringQ.MForm(row.Value[0], gct.Value[0][j][0].Q)
	ringQ.MForm(row.Value[1], gct.Value[0][j][1].Q)
}

// deltaDigit returns B^j for gadget digit j, the scale the base-2^w
// decomposition multiplies digit j by.
func deltaDigit(params Parameters, j int) uint64 {
	shift := uint(j * params.baseTwo)
	if shift >= 63 {
		return 0
	}
	return 1 << shift
}
