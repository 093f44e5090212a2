// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOnlineQTRLWEPrefixes(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)
	g := endsIn01Graph(t)

	r, err := NewOnlineQTRLWERunner(g, eval, OnlineOptions{})
	require.NoError(t, err)
	require.Negative(t, r.SizeHint())

	bits := bitsOf("1101")
	for i, ap := range encryptBits(t, bits) {
		require.NoError(t, r.Step(ap))

		res, err := r.Result()
		require.NoError(t, err)
		require.Equal(t, g.Accept(bits[:i+1]), c.dec.DecryptBit(res),
			"prefix of length %d", i+1)
	}
}

func TestOnlineQTRLWEEmpty(t *testing.T) {
	c := testCtx(t)
	r, err := NewOnlineQTRLWERunner(evenOnesGraph(t), testEval(t), OnlineOptions{})
	require.NoError(t, err)

	res, err := r.Result()
	require.NoError(t, err)
	require.True(t, c.dec.DecryptBit(res), "empty input accepts when q0 is final")
}

func TestOnlineQTRLWERequiresGateKey(t *testing.T) {
	c := testCtx(t)
	_, err := NewOnlineQTRLWERunner(evenOnesGraph(t), NewEvaluator(c.params, nil), OnlineOptions{})
	require.True(t, errors.Is(err, ErrBadKey))
}

func TestOnlineReversedBoundaries(t *testing.T) {
	// Bootstrap interval 4 over 11110000: even ones at both
	// boundaries.
	c := testCtx(t)
	g := evenOnesGraph(t)

	r, err := NewOnlineReversedRunner(g, testEval(t), OnlineOptions{BootstrapInterval: 4})
	require.NoError(t, err)

	bits := bitsOf("11110000")
	aps := encryptBits(t, bits)
	for i := 0; i < 4; i++ {
		require.NoError(t, r.Step(aps[i]))
	}
	res, err := r.Result()
	require.NoError(t, err)
	require.True(t, c.dec.DecryptBit(res))

	for i := 4; i < 8; i++ {
		require.NoError(t, r.Step(aps[i]))
	}
	res, err = r.Result()
	require.NoError(t, err)
	require.True(t, c.dec.DecryptBit(res))
}

func TestOnlineReversedPrefixes(t *testing.T) {
	c := testCtx(t)
	g := endsIn01Graph(t)

	r, err := NewOnlineReversedRunner(g, testEval(t), OnlineOptions{})
	require.NoError(t, err)

	// Result before any input: acceptance of the empty string.
	res, err := r.Result()
	require.NoError(t, err)
	require.Equal(t, g.Accept(nil), c.dec.DecryptBit(res))

	bits := bitsOf("110101")
	for i, ap := range encryptBits(t, bits) {
		require.NoError(t, r.Step(ap))

		res, err := r.Result()
		require.NoError(t, err)
		require.Equal(t, g.Accept(bits[:i+1]), c.dec.DecryptBit(res),
			"prefix of length %d", i+1)
	}
}

func TestOnlineLUTWindows(t *testing.T) {
	c := testCtx(t)
	g := endsIn01Graph(t)

	r, err := NewOnlineLUTRunner(g, testEval(t), LUTOptions{
		QueueSize:     4,
		FirstLUTDepth: 2,
	})
	require.NoError(t, err)

	bits := bitsOf("11010001")
	aps := encryptBits(t, bits)

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Step(aps[i]))
	}
	res, err := r.Result()
	require.NoError(t, err)
	require.Equal(t, g.Accept(bits[:4]), c.dec.DecryptBit(res), "first window")

	for i := 4; i < 8; i++ {
		require.NoError(t, r.Step(aps[i]))
	}
	res, err = r.Result()
	require.NoError(t, err)
	require.Equal(t, g.Accept(bits[:8]), c.dec.DecryptBit(res), "second window")
}

func TestOnlineLUTShortInputEmitsNothing(t *testing.T) {
	r, err := NewOnlineLUTRunner(endsIn01Graph(t), testEval(t), LUTOptions{
		QueueSize:     4,
		FirstLUTDepth: 2,
	})
	require.NoError(t, err)

	for _, ap := range encryptBits(t, bitsOf("110")) {
		require.NoError(t, r.Step(ap))
	}
	_, err = r.Result()
	require.Error(t, err, "a partial window must not emit")
}

func TestOnlineLUTConfig(t *testing.T) {
	c := testCtx(t)
	eval := testEval(t)
	g := evenOnesGraph(t)

	_, err := NewOnlineLUTRunner(g, eval, LUTOptions{QueueSize: 1})
	require.True(t, errors.Is(err, ErrBadConfig))

	_, err = NewOnlineLUTRunner(g, eval, LUTOptions{QueueSize: 4, FirstLUTDepth: 4})
	require.True(t, errors.Is(err, ErrBadConfig))

	// d1 within the queue but beyond the TRLWE slot count.
	_, err = NewOnlineLUTRunner(g, eval, LUTOptions{QueueSize: 12, FirstLUTDepth: 11})
	require.True(t, errors.Is(err, ErrBadConfig))

	_, err = NewOnlineLUTRunner(g, NewEvaluator(c.params, nil), LUTOptions{
		QueueSize: 4, FirstLUTDepth: 2,
	})
	require.True(t, errors.Is(err, ErrBadKey))
}

func TestOnlineMatchesPlaintextModel(t *testing.T) {
	c := testCtx(t)
	rng := rand.New(rand.NewSource(8))
	g := randomGraph(t, rng, 4)
	bits := randomBits(rng, 6)
	aps := encryptBits(t, bits)

	q, err := NewOnlineQTRLWERunner(g, testEval(t), OnlineOptions{})
	require.NoError(t, err)
	rev, err := NewOnlineReversedRunner(g, testEval(t), OnlineOptions{})
	require.NoError(t, err)

	for i, ap := range aps {
		require.NoError(t, q.Step(ap))
		require.NoError(t, rev.Step(ap))

		want := g.Accept(bits[:i+1])
		res, err := q.Result()
		require.NoError(t, err)
		require.Equal(t, want, c.dec.DecryptBit(res), "qtrlwe prefix %d", i+1)

		res, err = rev.Result()
		require.NoError(t, err)
		require.Equal(t, want, c.dec.DecryptBit(res), "reversed prefix %d", i+1)
	}
}

func TestNewRunnerDispatch(t *testing.T) {
	eval := testEval(t)
	g := evenOnesGraph(t)

	r, err := NewRunner(g, eval, RunnerConfig{Mode: ModeOffline, InputLen: 4})
	require.NoError(t, err)
	require.IsType(t, &OfflineRunner{}, r)

	r, err = NewRunner(g, eval, RunnerConfig{Mode: ModeQTRLWE})
	require.NoError(t, err)
	require.IsType(t, &OnlineQTRLWERunner{}, r)

	r, err = NewRunner(g, eval, RunnerConfig{Mode: ModeReversed})
	require.NoError(t, err)
	require.IsType(t, &OnlineReversedRunner{}, r)

	r, err = NewRunner(g, eval, RunnerConfig{
		Mode: ModeQTRLWE2,
		LUT:  LUTOptions{QueueSize: 4, FirstLUTDepth: 2},
	})
	require.NoError(t, err)
	require.IsType(t, &OnlineLUTRunner{}, r)

	_, err = NewRunner(g, eval, RunnerConfig{Mode: Mode(42)})
	require.True(t, errors.Is(err, ErrBadConfig))
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeOffline, ModeQTRLWE, ModeReversed, ModeQTRLWE2} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
	_, err := ParseMode("qtrlwe3")
	require.True(t, errors.Is(err, ErrBadConfig))
}
