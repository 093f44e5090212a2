// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// evenOnesGraph accepts bit strings with an even number of ones.
func evenOnesGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph([][2]int{
		{0, 1}, // even
		{1, 0}, // odd
	}, []bool{true, false}, 0)
	require.NoError(t, err)
	return g
}

// endsIn01Graph accepts bit strings whose last two bits are 0 then 1.
func endsIn01Graph(t *testing.T) *Graph {
	t.Helper()
	// 0: last bit 1 (or empty), 1: last bit 0, 2: last two bits 01.
	g, err := NewGraph([][2]int{
		{1, 0},
		{1, 2},
		{1, 0},
	}, []bool{false, false, true}, 0)
	require.NoError(t, err)
	return g
}

func randomGraph(t *testing.T, rng *rand.Rand, n int) *Graph {
	t.Helper()
	child := make([][2]int, n)
	final := make([]bool, n)
	for v := range child {
		child[v][0] = rng.Intn(n)
		child[v][1] = rng.Intn(n)
		final[v] = rng.Intn(2) == 0
	}
	g, err := NewGraph(child, final, rng.Intn(n))
	require.NoError(t, err)
	return g
}

func randomBits(rng *rand.Rand, n int) []bool {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = rng.Intn(2) == 0
	}
	return bits
}

func reverseBits(bits []bool) []bool {
	out := make([]bool, len(bits))
	for i, b := range bits {
		out[len(bits)-1-i] = b
	}
	return out
}

func TestReadSpec(t *testing.T) {
	spec := `3 0 1
2
0 1 0
1 1 2
2 1 0
`
	g, err := ReadSpec(strings.NewReader(spec))
	require.NoError(t, err)
	require.Equal(t, 3, g.NumStates())
	require.Equal(t, 0, g.Init())
	require.True(t, g.IsFinal(2))
	require.False(t, g.IsFinal(0))
	require.Equal(t, 1, g.Child(0, 0))
	require.Equal(t, 2, g.Child(1, 1))
}

func TestReadSpecErrors(t *testing.T) {
	cases := map[string]string{
		"empty":              "",
		"zero states":        "0 0 0\n",
		"init out of range":  "1 3 0\n0 0 0\n",
		"final out of range": "1 0 1\n5\n0 0 0\n",
		"child out of range": "2 0 0\n0 0 5\n1 0 0\n",
		"duplicate state":    "2 0 0\n0 0 0\n0 1 1\n",
		"missing state":      "2 0 0\n0 0 0\n",
		"trailing token":     "1 0 0\n0 0 0\n7\n",
		"not a number":       "1 0 x\n0 0 0\n",
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSpec(strings.NewReader(spec))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrBadSpec), "want ErrBadSpec, got %v", err)
		})
	}
}

func TestDumpRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		g := randomGraph(t, rng, 2+rng.Intn(8))

		var buf bytes.Buffer
		require.NoError(t, g.Dump(&buf))
		first := buf.String()

		back, err := ReadSpec(strings.NewReader(first))
		require.NoError(t, err)

		buf.Reset()
		require.NoError(t, back.Dump(&buf))
		require.Empty(t, cmp.Diff(first, buf.String()))
	}
}

func TestNegated(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	g := randomGraph(t, rng, 6)
	ng := g.Negated()
	for i := 0; i < 100; i++ {
		bits := randomBits(rng, rng.Intn(16))
		require.Equal(t, !g.Accept(bits), ng.Accept(bits))
	}
}

func TestReversedLanguage(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 5; i++ {
		g := randomGraph(t, rng, 2+rng.Intn(5))
		rev := g.Reversed()
		back := rev.Reversed()
		for j := 0; j < 100; j++ {
			bits := randomBits(rng, rng.Intn(12))
			require.Equal(t, g.Accept(bits), rev.Accept(reverseBits(bits)),
				"reversed automaton must accept the mirrored string")
			require.Equal(t, g.Accept(bits), back.Accept(bits),
				"double reversal must preserve the language")
		}
	}
}

func TestMinimizedCollapsesEquivalentStates(t *testing.T) {
	// Five states, two equivalent accepting states (3 and 4): the
	// minimized automaton has four.
	g, err := NewGraph([][2]int{
		{1, 2},
		{3, 0},
		{4, 2},
		{3, 1},
		{4, 1},
	}, []bool{false, false, false, true, true}, 0)
	require.NoError(t, err)

	m := g.Minimized()
	require.Equal(t, 4, m.NumStates())

	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 100; i++ {
		bits := randomBits(rng, rng.Intn(20))
		require.Equal(t, g.Accept(bits), m.Accept(bits))
	}
}

func TestMinimizedDropsUnreachable(t *testing.T) {
	g, err := NewGraph([][2]int{
		{0, 0},
		{1, 1}, // unreachable
	}, []bool{true, false}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, g.Minimized().NumStates())
}

// canonicalDump renumbers states in BFS order from the initial state
// and dumps the result, giving a representation invariant under state
// renaming for reachable automata.
func canonicalDump(t *testing.T, g *Graph) string {
	t.Helper()

	id := make([]int, g.NumStates())
	for i := range id {
		id[i] = -1
	}
	order := []int{g.Init()}
	id[g.Init()] = 0
	for i := 0; i < len(order); i++ {
		for b := 0; b < 2; b++ {
			c := g.Child(order[i], b)
			if id[c] < 0 {
				id[c] = len(order)
				order = append(order, c)
			}
		}
	}

	child := make([][2]int, len(order))
	final := make([]bool, len(order))
	for i, v := range order {
		final[i] = g.IsFinal(v)
		child[i][0] = id[g.Child(v, 0)]
		child[i][1] = id[g.Child(v, 1)]
	}
	c, err := NewGraph(child, final, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Dump(&buf))
	return buf.String()
}

func TestMinimizeIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 10; i++ {
		g := randomGraph(t, rng, 2+rng.Intn(10))
		m1 := g.Minimized()
		m2 := m1.Minimized()

		require.Equal(t, m1.NumStates(), m2.NumStates())
		require.Empty(t, cmp.Diff(canonicalDump(t, m1), canonicalDump(t, m2)),
			"minimization must be structurally idempotent")
	}
}

func TestStatesAtDepth(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	g := randomGraph(t, rng, 7)
	g.ReserveStatesAtDepth(10)

	require.Equal(t, []int{g.Init()}, g.StatesAtDepth(0))
	for d := 0; d <= 10; d++ {
		r := g.StatesAtDepth(d)
		require.NotEmpty(t, r)
		require.LessOrEqual(t, len(r), g.NumStates())
	}
}

func TestStatesAtDepthMatchesRuns(t *testing.T) {
	g := endsIn01Graph(t)
	g.ReserveStatesAtDepth(4)

	// Depth 2: states reachable by some 2-bit input.
	want := map[int]bool{}
	for p := 0; p < 4; p++ {
		want[g.Walk(g.Init(), uint64(p), 2)] = true
	}
	got := g.StatesAtDepth(2)
	require.Len(t, got, len(want))
	for _, v := range got {
		require.True(t, want[v])
	}
}

func TestDumpDOT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, evenOnesGraph(t).DumpDOT(&buf))
	out := buf.String()
	require.Contains(t, out, "digraph dfa")
	require.Contains(t, out, "doublecircle")
	require.Contains(t, out, "start -> q0")
}

func TestWalk(t *testing.T) {
	g := evenOnesGraph(t)
	require.Equal(t, 0, g.Walk(0, 0b11, 2)) // two ones: back to even
	require.Equal(t, 1, g.Walk(0, 0b01, 2)) // one one: odd
	require.Equal(t, 1, g.Walk(0, 0b111, 3))
}
