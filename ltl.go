// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// defaultTranslator is the external LTL→DFA translator invoked by
// GraphFromLTL. It receives the atomic proposition count and the
// formula on argv and must print the textual DFA spec on stdout.
const defaultTranslator = "ltl2dfa"

// translatorEnv overrides the translator binary name.
const translatorEnv = "DFA_LTL_TRANSLATOR"

// GraphFromLTL compiles an LTL formula over numAP atomic propositions
// into a DFA by delegating to the external translator. Each alphabet
// symbol is consumed as numAP consecutive bits, least-significant
// proposition first.
func GraphFromLTL(formula string, numAP int) (*Graph, error) {
	if numAP < 1 {
		return nil, fmt.Errorf("%w: formula over %d atomic propositions", ErrBadLTL, numAP)
	}
	if strings.TrimSpace(formula) == "" {
		return nil, fmt.Errorf("%w: empty formula", ErrBadLTL)
	}

	name := os.Getenv(translatorEnv)
	if name == "" {
		name = defaultTranslator
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(name, "--ap", strconv.Itoa(numAP), formula)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrBadLTL, name, msg)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrBadLTL, name, err)
	}

	g, err := ReadSpec(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: translator output: %v", ErrBadLTL, err)
	}
	return g, nil
}
