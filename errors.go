// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import "errors"

// Error kinds surfaced to callers. Lower layers wrap these with
// fmt.Errorf("...: %w", ...) so errors.Is works across the CLI and the
// worker daemon. Failures reported by the lattice primitives are fatal;
// they are returned with added context but carry none of these kinds.
var (
	// ErrBadSpec reports a malformed DFA spec file.
	ErrBadSpec = errors.New("bad DFA spec")
	// ErrBadLTL reports a failed or unparsable LTL translation.
	ErrBadLTL = errors.New("bad LTL formula")
	// ErrBadKey reports missing or mismatched key material.
	ErrBadKey = errors.New("bad key material")
	// ErrBadInput reports a truncated or malformed ciphertext blob.
	ErrBadInput = errors.New("bad ciphertext input")
	// ErrBadConfig reports invalid runner tuning parameters.
	ErrBadConfig = errors.New("bad runner config")
)
