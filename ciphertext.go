// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"github.com/tuneinsight/lattigo/v6/core/rgsw"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// TLWE is an acceptance-bit ciphertext: a degree-1 RLWE sample whose
// slot 0 carries one sign-encoded Boolean.
type TLWE struct {
	*rlwe.Ciphertext
}

// TRLWE is a weight vector: a degree-1 RLWE sample whose N coefficient
// slots pack up to N Booleans. Runners use it as the accumulator for
// per-state weights and batched LUT tables.
type TRLWE struct {
	*rlwe.Ciphertext
}

// TRGSW is an encrypted atomic proposition in NTT/Montgomery form,
// usable as a CMUX selector through external products.
type TRGSW struct {
	*rgsw.Ciphertext
}

// CopyNew returns a deep copy of the weight vector.
func (t *TRLWE) CopyNew() *TRLWE {
	return &TRLWE{t.Ciphertext.CopyNew()}
}

// CopyNew returns a deep copy of the acceptance bit.
func (t *TLWE) CopyNew() *TLWE {
	return &TLWE{t.Ciphertext.CopyNew()}
}

// newCiphertext allocates a fresh NTT-domain degree-1 ciphertext.
func newCiphertext(params Parameters) *rlwe.Ciphertext {
	ct := rlwe.NewCiphertext(params.rlweParams, 1, params.MaxLevel())
	ct.IsNTT = true
	return ct
}
