// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTranslator installs a stub translator binary for the test.
func fakeTranslator(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-ltl2dfa")
	require.NoError(t, os.WriteFile(path, []byte(script), 0700))
	t.Setenv(translatorEnv, path)
}

func TestGraphFromLTL(t *testing.T) {
	fakeTranslator(t, `#!/bin/sh
echo "2 0 1"
echo "0"
echo "0 0 1"
echo "1 1 0"
`)
	g, err := GraphFromLTL("G !a", 1)
	require.NoError(t, err)
	require.Equal(t, 2, g.NumStates())
	require.True(t, g.IsFinal(0))
	require.True(t, g.Accept([]bool{false, false}))
	require.False(t, g.Accept([]bool{true}))
}

func TestGraphFromLTLTranslatorFailure(t *testing.T) {
	fakeTranslator(t, `#!/bin/sh
echo "no automaton for you" >&2
exit 1
`)
	_, err := GraphFromLTL("G !a", 1)
	require.True(t, errors.Is(err, ErrBadLTL))
	require.Contains(t, err.Error(), "no automaton for you")
}

func TestGraphFromLTLBadOutput(t *testing.T) {
	fakeTranslator(t, `#!/bin/sh
echo "this is not a spec"
`)
	_, err := GraphFromLTL("G !a", 1)
	require.True(t, errors.Is(err, ErrBadLTL))
}

func TestGraphFromLTLMissingTranslator(t *testing.T) {
	t.Setenv(translatorEnv, filepath.Join(t.TempDir(), "missing"))
	_, err := GraphFromLTL("G !a", 1)
	require.True(t, errors.Is(err, ErrBadLTL))
}

func TestGraphFromLTLRejectsZeroAP(t *testing.T) {
	_, err := GraphFromLTL("G !a", 0)
	require.True(t, errors.Is(err, ErrBadLTL))

	_, err = GraphFromLTL("   ", 1)
	require.True(t, errors.Is(err, ErrBadLTL))
}
