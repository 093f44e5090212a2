// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command dfa drives the homomorphic DFA engine: key generation,
// input encryption, offline and online evaluation, result decryption,
// and LTL/spec tooling.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/luxfi/dfa"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const usage = `usage: dfa <command> [flags]

commands:
  genkey      generate a secret key
  genbkey     generate the bootstrapping key from a secret key
  enc         encrypt an input file to a ciphertext blob
  dec         decrypt an acceptance ciphertext
  run-offline run the offline evaluator
  run-online  run an online evaluator (qtrlwe | reversed | qtrlwe2)
  ltl2spec    compile an LTL formula to a DFA spec
  ltl2dot     compile an LTL formula to Graphviz DOT
  spec2spec   transform a DFA spec (minimize/reverse/negate)
`

func run(args []string) error {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "genkey":
		return cmdGenKey(args[1:])
	case "genbkey":
		return cmdGenBKey(args[1:])
	case "enc":
		return cmdEnc(args[1:])
	case "dec":
		return cmdDec(args[1:])
	case "run-offline":
		return cmdRunOffline(args[1:])
	case "run-online":
		return cmdRunOnline(args[1:])
	case "ltl2spec":
		return cmdLTL2Spec(args[1:])
	case "ltl2dot":
		return cmdLTL2DOT(args[1:])
	case "spec2spec":
		return cmdSpec2Spec(args[1:])
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

// params returns the engine parameter set. All archives a run touches
// must have been produced under the same set.
func params() (dfa.Parameters, error) {
	return dfa.NewParametersFromLiteral(dfa.ParamsN10)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readSecretKey(path string) (*dfa.SecretKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dfa.ReadSecretKey(f)
}

func readBootstrapKey(path string) (*dfa.BootstrapKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dfa.ReadBootstrapKey(f)
}

func cmdGenKey(args []string) error {
	fs := flag.NewFlagSet("genkey", flag.ExitOnError)
	out := fs.String("out", "", "output secret key file (required)")
	fs.Parse(args)
	if *out == "" {
		return errors.New("genkey: --out is required")
	}

	p, err := params()
	if err != nil {
		return err
	}
	sk := dfa.NewKeyGenerator(p).GenSecretKey()
	return writeFile(*out, func(w io.Writer) error {
		return dfa.WriteSecretKey(w, sk)
	})
}

func cmdGenBKey(args []string) error {
	fs := flag.NewFlagSet("genbkey", flag.ExitOnError)
	key := fs.String("key", "", "secret key file (required)")
	out := fs.String("out", "", "output bootstrapping key file (required)")
	fs.Parse(args)
	if *key == "" || *out == "" {
		return errors.New("genbkey: --key and --out are required")
	}

	p, err := params()
	if err != nil {
		return err
	}
	sk, err := readSecretKey(*key)
	if err != nil {
		return err
	}
	bk := dfa.NewKeyGenerator(p).GenBootstrapKey(sk)
	return writeFile(*out, func(w io.Writer) error {
		return dfa.WriteBootstrapKey(w, bk)
	})
}

func cmdEnc(args []string) error {
	fs := flag.NewFlagSet("enc", flag.ExitOnError)
	key := fs.String("key", "", "secret key file (required)")
	in := fs.String("in", "", "plaintext input file (required)")
	out := fs.String("out", "", "output ciphertext blob (required)")
	fs.Parse(args)
	if *key == "" || *in == "" || *out == "" {
		return errors.New("enc: --key, --in and --out are required")
	}

	p, err := params()
	if err != nil {
		return err
	}
	sk, err := readSecretKey(*key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}

	bits, err := dfa.NewEncryptor(p, sk).EncryptBytes(data)
	if err != nil {
		return err
	}
	return writeFile(*out, func(w io.Writer) error {
		return dfa.WriteBlob(w, bits)
	})
}

func cmdDec(args []string) error {
	fs := flag.NewFlagSet("dec", flag.ExitOnError)
	key := fs.String("key", "", "secret key file (required)")
	in := fs.String("in", "", "acceptance ciphertext file (required)")
	fs.Parse(args)
	if *key == "" || *in == "" {
		return errors.New("dec: --key and --in are required")
	}

	p, err := params()
	if err != nil {
		return err
	}
	sk, err := readSecretKey(*key)
	if err != nil {
		return err
	}
	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()
	res, err := dfa.ReadResult(f)
	if err != nil {
		return err
	}

	fmt.Println(dfa.NewDecryptor(p, sk).DecryptBit(res))
	return nil
}

func cmdRunOffline(args []string) error {
	fs := flag.NewFlagSet("run-offline", flag.ExitOnError)
	spec := fs.String("spec", "", "DFA spec file (required)")
	in := fs.String("in", "", "ciphertext blob (required)")
	out := fs.String("out", "", "output acceptance ciphertext (required)")
	bkey := fs.String("bkey", "", "bootstrapping key file (optional)")
	interval := fs.Int("bootstrap-interval", 0, "CMUX levels between bootstraps (0 = per input)")
	fs.Parse(args)
	if *spec == "" || *in == "" || *out == "" {
		return errors.New("run-offline: --spec, --in and --out are required")
	}

	p, err := params()
	if err != nil {
		return err
	}
	g, err := dfa.LoadSpec(*spec)
	if err != nil {
		return err
	}
	stream, err := dfa.OpenReversedStream(*in)
	if err != nil {
		return err
	}

	var bk *dfa.BootstrapKey
	if *bkey != "" {
		if bk, err = readBootstrapKey(*bkey); err != nil {
			return err
		}
	}

	eval := dfa.NewEvaluator(p, bk)
	runner, err := dfa.NewOfflineRunner(g, stream.Size(), eval, dfa.OfflineOptions{
		BootstrapInterval: *interval,
	})
	if err != nil {
		return err
	}
	if err := runner.EvalStream(stream); err != nil {
		return err
	}
	res, err := runner.Result()
	if err != nil {
		return err
	}
	return writeFile(*out, func(w io.Writer) error {
		return dfa.WriteResult(w, res)
	})
}

func cmdRunOnline(args []string) error {
	fs := flag.NewFlagSet("run-online", flag.ExitOnError)
	method := fs.String("method", "qtrlwe", "qtrlwe | reversed | qtrlwe2")
	spec := fs.String("spec", "", "DFA spec file (required)")
	in := fs.String("in", "", "ciphertext blob (required)")
	out := fs.String("out", "", "output acceptance ciphertext (required)")
	bkey := fs.String("bkey", "", "bootstrapping key file (required)")
	queueSize := fs.Int("queue-size", 0, "qtrlwe2 window length (0 = default)")
	firstLUT := fs.Int("first-lut-depth", 0, "qtrlwe2 first-LUT depth (0 = default)")
	interval := fs.Int("bootstrap-interval", 0, "steps between bootstraps (0 = default)")
	fs.Parse(args)
	if *spec == "" || *in == "" || *out == "" {
		return errors.New("run-online: --spec, --in and --out are required")
	}
	if *bkey == "" {
		return errors.New("run-online: --bkey is required")
	}

	mode, err := dfa.ParseMode(*method)
	if err != nil {
		return err
	}
	if mode == dfa.ModeOffline {
		return errors.New("run-online: use run-offline for the offline method")
	}

	p, err := params()
	if err != nil {
		return err
	}
	g, err := dfa.LoadSpec(*spec)
	if err != nil {
		return err
	}
	stream, err := dfa.OpenForwardStream(*in)
	if err != nil {
		return err
	}
	bk, err := readBootstrapKey(*bkey)
	if err != nil {
		return err
	}

	eval := dfa.NewEvaluator(p, bk)
	runner, err := dfa.NewRunner(g, eval, dfa.RunnerConfig{
		Mode:   mode,
		Online: dfa.OnlineOptions{BootstrapInterval: *interval},
		LUT: dfa.LUTOptions{
			QueueSize:     *queueSize,
			FirstLUTDepth: *firstLUT,
		},
	})
	if err != nil {
		return err
	}

	for stream.Size() > 0 {
		ap, err := stream.Next()
		if err != nil {
			return err
		}
		if err := runner.Step(ap); err != nil {
			return err
		}
	}
	res, err := runner.Result()
	if err != nil {
		return err
	}
	return writeFile(*out, func(w io.Writer) error {
		return dfa.WriteResult(w, res)
	})
}

// graphTransforms applies the shared minimize/reverse/negate flags.
func graphTransforms(fs *flag.FlagSet) (*bool, *bool, *bool) {
	minimized := fs.Bool("minimized", false, "minimize the automaton")
	reversed := fs.Bool("reversed", false, "reverse the automaton")
	negated := fs.Bool("negated", false, "negate the final set")
	return minimized, reversed, negated
}

func applyTransforms(g *dfa.Graph, minimized, reversed, negated bool) *dfa.Graph {
	if reversed {
		g = g.Reversed()
	}
	if negated {
		g = g.Negated()
	}
	if minimized {
		g = g.Minimized()
	}
	return g
}

func outputGraph(g *dfa.Graph, out string, dump func(*dfa.Graph, io.Writer) error) error {
	if out == "" {
		return dump(g, os.Stdout)
	}
	return writeFile(out, func(w io.Writer) error {
		return dump(g, w)
	})
}

func cmdLTL2Spec(args []string) error {
	fs := flag.NewFlagSet("ltl2spec", flag.ExitOnError)
	formula := fs.String("formula", "", "LTL formula (required)")
	ap := fs.Int("ap", 1, "number of atomic propositions")
	out := fs.String("out", "", "output spec file (default stdout)")
	fs.Parse(args)
	if *formula == "" {
		return errors.New("ltl2spec: --formula is required")
	}

	g, err := dfa.GraphFromLTL(*formula, *ap)
	if err != nil {
		return err
	}
	return outputGraph(g, *out, (*dfa.Graph).Dump)
}

func cmdLTL2DOT(args []string) error {
	fs := flag.NewFlagSet("ltl2dot", flag.ExitOnError)
	formula := fs.String("formula", "", "LTL formula (required)")
	ap := fs.Int("ap", 1, "number of atomic propositions")
	out := fs.String("out", "", "output DOT file (default stdout)")
	minimized, reversed, negated := graphTransforms(fs)
	fs.Parse(args)
	if *formula == "" {
		return errors.New("ltl2dot: --formula is required")
	}

	g, err := dfa.GraphFromLTL(*formula, *ap)
	if err != nil {
		return err
	}
	g = applyTransforms(g, *minimized, *reversed, *negated)
	return outputGraph(g, *out, (*dfa.Graph).DumpDOT)
}

func cmdSpec2Spec(args []string) error {
	fs := flag.NewFlagSet("spec2spec", flag.ExitOnError)
	spec := fs.String("spec", "", "input spec file (required)")
	out := fs.String("out", "", "output spec file (default stdout)")
	minimized, reversed, negated := graphTransforms(fs)
	fs.Parse(args)
	if *spec == "" {
		return errors.New("spec2spec: --spec is required")
	}

	g, err := dfa.LoadSpec(*spec)
	if err != nil {
		return err
	}
	g = applyTransforms(g, *minimized, *reversed, *negated)
	return outputGraph(g, *out, (*dfa.Graph).Dump)
}
