// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testLiteral keeps the encrypted tests fast: N=512, Q=12289.
var testLiteral = ParametersLiteral{
	LogN:                 9,
	Q:                    0x3001,
	BaseTwoDecomposition: 7,
}

type testContext struct {
	params Parameters
	sk     *SecretKey
	bk     *BootstrapKey
	enc    *Encryptor
	dec    *Decryptor
}

var (
	tcOnce sync.Once
	tc     *testContext
	tcErr  error
)

// testCtx generates the shared key material once per test binary; the
// bootstrap key is the expensive part.
func testCtx(t *testing.T) *testContext {
	t.Helper()
	tcOnce.Do(func() {
		params, err := NewParametersFromLiteral(testLiteral)
		if err != nil {
			tcErr = err
			return
		}
		kgen := NewKeyGenerator(params)
		sk := kgen.GenSecretKey()
		tc = &testContext{
			params: params,
			sk:     sk,
			bk:     kgen.GenBootstrapKey(sk),
			enc:    NewEncryptor(params, sk),
			dec:    NewDecryptor(params, sk),
		}
	})
	require.NoError(t, tcErr)
	return tc
}

func testEval(t *testing.T) *Evaluator {
	return NewEvaluator(testCtx(t).params, testCtx(t).bk)
}

func TestEncryptDecryptBit(t *testing.T) {
	c := testCtx(t)
	for _, b := range []bool{false, true} {
		ap, err := c.enc.EncryptBit(b)
		require.NoError(t, err)
		require.Equal(t, b, c.dec.DecryptBit(ap.L))
	}
}

func TestTrivialBits(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)
	require.True(t, c.dec.DecryptSlot(eval.TrivialBit(true), 0))
	require.False(t, c.dec.DecryptSlot(eval.TrivialBit(false), 0))
	require.True(t, c.dec.DecryptSlot(eval.TrivialBit(true), 5))
}

func TestCMUXTruthTable(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)

	for _, sel := range []bool{false, true} {
		for _, a := range []bool{false, true} {
			for _, b := range []bool{false, true} {
				ap, err := c.enc.EncryptBit(sel)
				require.NoError(t, err)

				out := eval.CMUX(ap.G, eval.TrivialBit(a), eval.TrivialBit(b))
				want := b
				if sel {
					want = a
				}
				require.Equal(t, want, c.dec.DecryptSlot(out, 0),
					"CMUX(%v, %v, %v)", sel, a, b)
			}
		}
	}
}

func TestRotateAndExtract(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)

	v := eval.TrivialMask([]int{3})
	require.True(t, c.dec.DecryptMaskSlot(v, 3))
	require.False(t, c.dec.DecryptMaskSlot(v, 2))

	r := eval.Rotate(v, 2)
	require.True(t, c.dec.DecryptMaskSlot(r, 5))
	require.False(t, c.dec.DecryptMaskSlot(r, 3))

	ex := eval.Extract(v, 3)
	require.True(t, c.dec.DecryptMaskSlot(&TRLWE{ex.Ciphertext}, 0))
}

func TestRefreshBit(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)
	for _, b := range []bool{false, true} {
		ap, err := c.enc.EncryptBit(b)
		require.NoError(t, err)
		fresh, err := eval.RefreshBit(ap.L)
		require.NoError(t, err)
		require.Equal(t, b, c.dec.DecryptBit(fresh))
	}
}

func TestRefreshWeight(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)
	for _, b := range []bool{false, true} {
		fresh, err := eval.RefreshWeight(eval.TrivialBit(b))
		require.NoError(t, err)
		require.Equal(t, b, c.dec.DecryptSlot(fresh, 0))
	}
}

func TestThresholdBit(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)

	hot, err := eval.ThresholdBit(eval.Extract(eval.TrivialMask([]int{0}), 0))
	require.NoError(t, err)
	require.True(t, c.dec.DecryptBit(hot))

	cold, err := eval.ThresholdBit(eval.Extract(eval.TrivialZero(), 0))
	require.NoError(t, err)
	require.False(t, c.dec.DecryptBit(cold))
}

func TestRefreshMaskWeight(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)

	hot, err := eval.RefreshMaskWeight(eval.TrivialMask([]int{0}))
	require.NoError(t, err)
	require.True(t, c.dec.DecryptMaskSlot(hot, 0))

	cold, err := eval.RefreshMaskWeight(eval.TrivialZero())
	require.NoError(t, err)
	require.False(t, c.dec.DecryptMaskSlot(cold, 0))
}

func TestIdentityKeySwitch(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)

	ap, err := c.enc.EncryptBit(true)
	require.NoError(t, err)
	w, err := eval.IdentityKeySwitch(ap.L)
	require.NoError(t, err)
	require.True(t, c.dec.DecryptSlot(w, 0))
}

func TestCircuitBootstrapDrivesCMUX(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)

	for _, b := range []bool{false, true} {
		ap, err := c.enc.EncryptBit(b)
		require.NoError(t, err)

		sel, err := eval.CircuitBootstrap(ap.L)
		require.NoError(t, err)

		out := eval.CMUX(sel, eval.TrivialBit(true), eval.TrivialBit(false))
		require.Equal(t, b, c.dec.DecryptSlot(out, 0))
	}
}

func TestMissingKeys(t *testing.T) {
	c := testCtx(t)
	bare := NewEvaluator(c.params, nil)

	_, err := bare.RefreshBit(&TLWE{newCiphertext(c.params)})
	require.True(t, errors.Is(err, ErrBadKey))

	_, err = bare.CircuitBootstrap(&TLWE{newCiphertext(c.params)})
	require.True(t, errors.Is(err, ErrBadKey))

	_, err = bare.IdentityKeySwitch(&TLWE{newCiphertext(c.params)})
	require.True(t, errors.Is(err, ErrBadKey))

	require.False(t, bare.CanBootstrap())
	require.True(t, testEval(t).CanCircuitBootstrap())
}

func TestForkedCMUXMatches(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)
	fork := eval.Fork()

	ap, err := c.enc.EncryptBit(true)
	require.NoError(t, err)

	a := eval.CMUX(ap.G, eval.TrivialBit(true), eval.TrivialBit(false))
	b := fork.CMUX(ap.G, fork.TrivialBit(true), fork.TrivialBit(false))
	require.Equal(t, c.dec.DecryptSlot(a, 0), c.dec.DecryptSlot(b, 0))
}
