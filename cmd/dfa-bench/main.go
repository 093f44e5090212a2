// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command dfa-bench times the online evaluators over a plaintext
// input: per-bit encryption, evaluation step and periodic result
// decryption, reported as key,value CSV rows with a closing summary.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/luxfi/dfa"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		specPath   = flag.String("spec", "", "DFA spec file (required)")
		inputPath  = flag.String("in", "", "plaintext input file (required)")
		method     = flag.String("method", "reversed", "qtrlwe | reversed | qtrlwe2")
		numAP      = flag.Int("ap", 1, "atomic propositions consumed per input byte")
		outputFreq = flag.Int("output-freq", 8, "decrypt the result every this many bits")
		queueSize  = flag.Int("queue-size", 0, "qtrlwe2 window length (0 = default)")
		firstLUT   = flag.Int("first-lut-depth", 0, "qtrlwe2 first-LUT depth (0 = default)")
		interval   = flag.Int("bootstrap-interval", 0, "steps between bootstraps (0 = default)")
	)
	flag.Parse()
	if *specPath == "" || *inputPath == "" {
		return errors.New("--spec and --in are required")
	}
	if *numAP < 1 || *numAP > 8 {
		return errors.New("--ap must be in [1, 8]")
	}
	if *outputFreq < 1 {
		return errors.New("--output-freq must be positive")
	}

	mode, err := dfa.ParseMode(*method)
	if err != nil {
		return err
	}
	if mode == dfa.ModeOffline {
		return errors.New("dfa-bench times the online methods only")
	}

	print := func(key string, value interface{}) {
		fmt.Printf("%s,%v\n", key, value)
	}

	print("config-spec", *specPath)
	print("config-input", *inputPath)
	print("config-method", *method)
	print("config-num_ap", *numAP)
	print("config-output_freq", *outputFreq)

	params, err := dfa.NewParametersFromLiteral(dfa.ParamsN10)
	if err != nil {
		return err
	}

	kgen := dfa.NewKeyGenerator(params)
	start := time.Now()
	sk := kgen.GenSecretKey()
	print("skey", time.Since(start).Microseconds())

	start = time.Now()
	bk := kgen.GenBootstrapKey(sk)
	print("bkey", time.Since(start).Microseconds())

	g, err := dfa.LoadSpec(*specPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(*inputPath)
	if err != nil {
		return err
	}

	enc := dfa.NewEncryptor(params, sk)
	dec := dfa.NewDecryptor(params, sk)
	eval := dfa.NewEvaluator(params, bk)

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

	var encTimes, runTimes, decTimes []float64
	processed := 0
	for _, b := range data {
		for i := 0; i < *numAP; i++ {
			bit := (b>>i)&1 == 1

			start = time.Now()
			ap, err := enc.EncryptBit(bit)
			if err != nil {
				return err
			}
			encUS := float64(time.Since(start).Microseconds())
			encTimes = append(encTimes, encUS)
			print("enc", int64(encUS))

			start = time.Now()
			if err := runner.Step(ap); err != nil {
				return err
			}
			runUS := float64(time.Since(start).Microseconds())
			runTimes = append(runTimes, runUS)
			print("run", int64(runUS))

			processed++
			if processed%*outputFreq != 0 {
				continue
			}
			start = time.Now()
			res, err := runner.Result()
			if err != nil {
				// The batched LUT method emits only at window
				// boundaries; skip positions without output.
				continue
			}
			bit = dec.DecryptBit(res)
			decUS := float64(time.Since(start).Microseconds())
			decTimes = append(decTimes, decUS)
			print("dec", int64(decUS))
			print("result", bit)
		}
	}

	for _, s := range []struct {
		name    string
		samples []float64
	}{
		{"enc", encTimes},
		{"run", runTimes},
		{"dec", decTimes},
	} {
		if len(s.samples) == 0 {
			continue
		}
		summarize(print, s.name, s.samples)
	}
	return nil
}

// summarize prints min/mean/median/p95/max rows for one phase.
func summarize(print func(string, interface{}), name string, samples []float64) {
	min, _ := stats.Min(samples)
	mean, _ := stats.Mean(samples)
	median, _ := stats.Median(samples)
	p95, _ := stats.Percentile(samples, 95)
	max, _ := stats.Max(samples)

	print(name+"-min", int64(min))
	print(name+"-mean", int64(mean))
	print(name+"-median", int64(median))
	print(name+"-p95", int64(p95))
	print(name+"-max", int64(max))
}
