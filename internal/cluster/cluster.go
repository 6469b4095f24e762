// Package cluster runs partition tasks on a fixed pool of workers, one per
// configured device. It is the local stand-in for a distributed scheduler:
// the cluster owns worker lifecycle, a client fans tasks out and gathers
// completion.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Task is the unit of work scheduled on a worker. The device argument is the
// worker's bound device ID; -1 means CPU.
type Task = func(ctx context.Context, device int) error

// CPUDevice is the device ID given to workers with no GPU binding.
const CPUDevice = -1

// ErrClosed is returned when work is submitted after Close.
var ErrClosed = errors.New("cluster is closed")

// Config controls the worker pool shape.
type Config struct {
	// Devices lists the device IDs to bind workers to. Empty means a single
	// CPU worker.
	Devices []int
	// QueueDepth bounds how many tasks can wait unscheduled. Zero picks a
	// default proportional to the worker count.
	QueueDepth int
}

type job struct {
	idx     int
	ctx     context.Context
	task    Task
	results chan<- result
}

type result struct {
	idx int
	err error
}

// LocalCluster is a pool of device-bound workers fed from a shared queue.
type LocalCluster struct {
	devices []int
	tasks   chan job
	wg      sync.WaitGroup
	logger  *log.Logger

	mu     sync.Mutex
	closed bool
}

// NewLocal starts the worker pool. Workers run until Close.
func NewLocal(cfg Config, logger *log.Logger) *LocalCluster {
	devices := cfg.Devices
	if len(devices) == 0 {
		devices = []int{CPUDevice}
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 2 * len(devices)
	}
	c := &LocalCluster{
		devices: append([]int(nil), devices...),
		tasks:   make(chan job, depth),
		logger:  logger,
	}
	for _, device := range c.devices {
		c.wg.Add(1)
		go c.worker(device)
	}
	c.logf("cluster: started %d workers (devices %v)", len(c.devices), c.devices)
	return c
}

// NumWorkers reports the pool size.
func (c *LocalCluster) NumWorkers() int { return len(c.devices) }

// Client returns a scheduling handle for this cluster.
func (c *LocalCluster) Client() *Client { return &Client{cluster: c} }

// Close stops accepting work and waits for workers to drain. Idempotent.
func (c *LocalCluster) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.tasks)
	c.mu.Unlock()
	c.wg.Wait()
	c.logf("cluster: closed")
}

func (c *LocalCluster) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// submit enqueues a job unless the cluster is closed. The closed check and
// the send happen under the lock so Close cannot race a send on a closed
// channel.
func (c *LocalCluster) submit(j job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.tasks <- j:
		return nil
	case <-j.ctx.Done():
		return j.ctx.Err()
	}
}

func (c *LocalCluster) worker(device int) {
	defer c.wg.Done()
	for j := range c.tasks {
		if err := j.ctx.Err(); err != nil {
			j.results <- result{idx: j.idx, err: err}
			continue
		}
		j.results <- result{idx: j.idx, err: j.task(j.ctx, device)}
	}
}

func (c *LocalCluster) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Client schedules task sets on its cluster.
type Client struct {
	cluster *LocalCluster
}

// Run fans the tasks out to the pool and waits for all of them. The first
// task error cancels the remainder and is returned with its task index.
func (c *Client) Run(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if c.cluster.isClosed() {
		return ErrClosed
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, len(tasks))
	go func() {
		for i, task := range tasks {
			j := job{idx: i, ctx: runCtx, task: task, results: results}
			if err := c.cluster.submit(j); err != nil {
				results <- result{idx: i, err: err}
			}
		}
	}()

	var firstErr error
	for range tasks {
		res := <-results
		if res.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("task %d: %w", res.idx, res.err)
			cancel()
		}
	}
	return firstErr
}
