// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command dfa-worker drains evaluation jobs from a Redis queue,
// resolves their archives through content-addressed storage, runs the
// requested evaluator and stores the resulting acceptance ciphertext.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/luxfi/dfa"
	"github.com/luxfi/dfa/internal/queue"
	"github.com/luxfi/dfa/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		numWorkers  = flag.Int("workers", 2, "number of evaluation goroutines")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address")
		redisDB     = flag.Int("redis-db", 0, "Redis database number")
		queueName   = flag.String("queue", "default", "queue name")
		storagePath = flag.String("storage", "/var/lib/dfa-worker", "archive storage path")
		metricsAddr = flag.String("metrics", ":9090", "metrics server address")
	)
	flag.Parse()

	log.Printf("DFA worker starting...")
	log.Printf("  Workers: %d", *numWorkers)
	log.Printf("  Redis: %s", *redisAddr)
	log.Printf("  Storage: %s", *storagePath)
	log.Printf("  Metrics: %s", *metricsAddr)

	q, err := queue.NewRedisQueue(queue.RedisConfig{
		Addr: *redisAddr,
		DB:   *redisDB,
	}, *queueName)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	store, err := storage.NewFileStore(*storagePath)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	params, err := dfa.NewParametersFromLiteral(dfa.ParamsN10)
	if err != nil {
		return fmt.Errorf("create parameters: %w", err)
	}

	pool := &WorkerPool{
		numWorkers: *numWorkers,
		queue:      q,
		storage:    store,
		params:     params,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "# HELP dfa_evaluations_total Total DFA evaluations\n")
		fmt.Fprintf(w, "# TYPE dfa_evaluations_total counter\n")
		fmt.Fprintf(w, "dfa_evaluations_total{status=\"success\"} %d\n", pool.successCount.Load())
		fmt.Fprintf(w, "dfa_evaluations_total{status=\"failure\"} %d\n", pool.failureCount.Load())
	})

	server := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		log.Printf("Metrics server starting on %s", *metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal: %s", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown error: %v", err)
	}
	if err := pool.Stop(); err != nil {
		log.Printf("Worker pool shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// WorkerPool manages the evaluation goroutines.
type WorkerPool struct {
	numWorkers   int
	queue        queue.Queue
	storage      storage.Store
	params       dfa.Parameters
	wg           sync.WaitGroup
	cancel       context.CancelFunc
	running      atomic.Bool
	successCount atomic.Int64
	failureCount atomic.Int64
}

// Start starts the worker pool.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.running.Load() {
		return errors.New("pool already running")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.running.Store(true)

	log.Printf("Starting %d workers", p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Stop gracefully stops the worker pool.
func (p *WorkerPool) Stop() error {
	if !p.running.Load() {
		return nil
	}

	log.Println("Stopping worker pool...")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Worker pool stopped")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout exceeded")
		return errors.New("shutdown timeout")
	}

	p.running.Store(false)
	return nil
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	log.Printf("Worker %d started", id)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("Worker %d: failed to pop job: %v", id, err)
			time.Sleep(time.Second)
			continue
		}

		p.processJob(ctx, id, job)
	}
}

func (p *WorkerPool) processJob(ctx context.Context, workerID int, job *queue.Job) {
	log.Printf("Worker %d: job %s (mode=%s)", workerID, job.ID, job.Mode)

	job.Status = queue.StatusProcessing
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job status: %v", workerID, err)
	}

	handle, err := p.evaluate(ctx, job)
	if err != nil {
		job.Status = queue.StatusFailed
		job.Error = err.Error()
		p.queue.Update(ctx, job)
		p.failureCount.Add(1)
		log.Printf("Worker %d: job %s failed: %v", workerID, job.ID, err)
		return
	}

	job.ResultHandle = string(handle)
	job.Status = queue.StatusCompleted
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to record result: %v", workerID, err)
	}
	p.successCount.Add(1)
}

// evaluate resolves the job's archives, runs the requested evaluator
// and stores the acceptance ciphertext.
func (p *WorkerPool) evaluate(ctx context.Context, job *queue.Job) (storage.Handle, error) {
	mode, err := dfa.ParseMode(job.Mode)
	if err != nil {
		return "", err
	}

	specData, err := p.storage.Get(ctx, storage.Handle(job.SpecHandle))
	if err != nil {
		return "", fmt.Errorf("load spec: %w", err)
	}
	g, err := dfa.ReadSpec(bytes.NewReader(specData))
	if err != nil {
		return "", err
	}

	inputData, err := p.storage.Get(ctx, storage.Handle(job.InputHandle))
	if err != nil {
		return "", fmt.Errorf("load input: %w", err)
	}

	var bk *dfa.BootstrapKey
	if job.BKeyHandle != "" {
		bkData, err := p.storage.Get(ctx, storage.Handle(job.BKeyHandle))
		if err != nil {
			return "", fmt.Errorf("load bootstrapping key: %w", err)
		}
		if bk, err = dfa.ReadBootstrapKey(bytes.NewReader(bkData)); err != nil {
			return "", err
		}
	}

	eval := dfa.NewEvaluator(p.params, bk)

	var stream dfa.InputStream
	if mode == dfa.ModeOffline {
		if stream, err = dfa.NewReversedStream(bytes.NewReader(inputData)); err != nil {
			return "", err
		}
	} else {
		if stream, err = dfa.NewForwardStream(bytes.NewReader(inputData)); err != nil {
			return "", err
		}
	}

	runner, err := dfa.NewRunner(g, eval, dfa.RunnerConfig{
		Mode:     mode,
		InputLen: stream.Size(),
		Offline:  dfa.OfflineOptions{BootstrapInterval: job.BootstrapInterval},
		Online:   dfa.OnlineOptions{BootstrapInterval: job.BootstrapInterval},
		LUT: dfa.LUTOptions{
			QueueSize:     job.QueueSize,
			FirstLUTDepth: job.FirstLUTDepth,
		},
	})
	if err != nil {
		return "", err
	}

	for stream.Size() > 0 {
		select {
		case <-ctx.Done():
			runner.Stop()
			return "", ctx.Err()
		default:
		}
		ap, err := stream.Next()
		if err != nil {
			return "", err
		}
		if err := runner.Step(ap); err != nil {
			return "", err
		}
	}

	res, err := runner.Result()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := dfa.WriteResult(&buf, res); err != nil {
		return "", err
	}
	return p.storage.Put(ctx, buf.Bytes())
}
