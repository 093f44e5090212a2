// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
)

// Decryptor opens acceptance bits with the secret key. The batched LUT
// runner also borrows one in debug mode to log intermediate values.
type Decryptor struct {
	params Parameters
	dec    *rlwe.Decryptor
	ringQ  *ring.Ring
}

// NewDecryptor creates a new decryptor from a secret key.
func NewDecryptor(params Parameters, sk *SecretKey) *Decryptor {
	return &Decryptor{
		params: params,
		dec:    rlwe.NewDecryptor(params.rlweParams, sk.SK),
		ringQ:  params.RingQ(),
	}
}

// decryptCoeff returns the plaintext torus value in the given slot.
func (dec *Decryptor) decryptCoeff(ct *rlwe.Ciphertext, slot int) uint64 {
	pt := rlwe.NewPlaintext(dec.params.rlweParams, ct.Level())
	dec.dec.Decrypt(ct, pt)
	if pt.IsNTT {
		dec.ringQ.INTT(pt.Value, pt.Value)
	}
	return pt.Value.Coeffs[0][slot]
}

// DecryptBit opens a sign-encoded acceptance bit: values in [0, Q/2)
// decode to true.
func (dec *Decryptor) DecryptBit(ct *TLWE) bool {
	return dec.decryptCoeff(ct.Ciphertext, 0) < dec.params.Q()/2
}

// DecryptSlot opens one slot of a weight vector, sign-decoded.
// Diagnostic use only.
func (dec *Decryptor) DecryptSlot(t *TRLWE, slot int) bool {
	return dec.decryptCoeff(t.Ciphertext, slot) < dec.params.Q()/2
}

// DecryptMaskSlot opens one slot of an occupancy vector ({0, Q/4}
// encoding): values nearer Q/4 than 0 decode to true. Diagnostic use
// only.
func (dec *Decryptor) DecryptMaskSlot(t *TRLWE, slot int) bool {
	v := dec.decryptCoeff(t.Ciphertext, slot)
	q := dec.params.Q()
	return v > q/8 && v < q/2
}
