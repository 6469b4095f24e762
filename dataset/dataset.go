// Package dataset provides a partitioned, lazily evaluated collection of JSON
// documents. Transforms accumulate without running; an explicit Compute or
// ToJSON call materializes them, one task per partition, through a Runner.
package dataset

import (
	"context"
	"errors"
	"fmt"
)

// TextField is the record field every document is expected to carry.
const TextField = "text"

// Record is a single JSON document.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Partition is an ordered slice of records processed as one unit of work.
type Partition []Record

// Transform rewrites one partition. The device argument identifies the worker
// the partition landed on; -1 means CPU.
type Transform func(ctx context.Context, device int, p Partition) (Partition, error)

// Task is the unit of work a Runner schedules.
type Task = func(ctx context.Context, device int) error

// Runner executes a set of tasks, typically one per partition. A cluster
// client satisfies this; SerialRunner is the single-threaded fallback.
type Runner interface {
	Run(ctx context.Context, tasks []Task) error
}

// SerialRunner executes tasks in order on the calling goroutine.
type SerialRunner struct {
	// Device is passed to every task. Zero value means device 0.
	Device int
}

// Run executes each task in turn, stopping at the first error.
func (r SerialRunner) Run(ctx context.Context, tasks []Task) error {
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task(ctx, r.Device); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
	}
	return nil
}

// ErrNotComputed is returned when an operation needs materialized data but
// the dataset still has pending transforms.
var ErrNotComputed = errors.New("dataset has pending transforms; call Compute first")

// DocumentDataset is an immutable view over partitions plus an ordered list
// of pending transforms. Deriving a dataset is cheap; partitions are shared.
type DocumentDataset struct {
	partitions []Partition
	transforms []Transform
}

// FromPartitions wraps already materialized partitions.
func FromPartitions(parts []Partition) *DocumentDataset {
	return &DocumentDataset{partitions: parts}
}

// FromTexts builds an in-memory dataset of text records distributed
// round-robin over npartitions. npartitions is clamped to [1, len(texts)].
func FromTexts(texts []string, npartitions int) *DocumentDataset {
	if npartitions < 1 {
		npartitions = 1
	}
	if len(texts) > 0 && npartitions > len(texts) {
		npartitions = len(texts)
	}
	parts := make([]Partition, npartitions)
	for i, text := range texts {
		p := i % npartitions
		parts[p] = append(parts[p], Record{TextField: text})
	}
	return FromPartitions(parts)
}

// WithTransform derives a dataset with one more pending transform. The
// receiver is unchanged.
func (d *DocumentDataset) WithTransform(t Transform) *DocumentDataset {
	transforms := make([]Transform, 0, len(d.transforms)+1)
	transforms = append(transforms, d.transforms...)
	transforms = append(transforms, t)
	return &DocumentDataset{partitions: d.partitions, transforms: transforms}
}

// NumPartitions reports how many partitions the dataset holds.
func (d *DocumentDataset) NumPartitions() int { return len(d.partitions) }

// Len reports the total record count across partitions.
func (d *DocumentDataset) Len() int {
	n := 0
	for _, p := range d.partitions {
		n += len(p)
	}
	return n
}

// Compute runs all pending transforms through the runner and returns a
// materialized dataset. Record order within each partition is preserved.
func (d *DocumentDataset) Compute(ctx context.Context, runner Runner) (*DocumentDataset, error) {
	if len(d.transforms) == 0 {
		return d, nil
	}
	out := make([]Partition, len(d.partitions))
	tasks := make([]Task, len(d.partitions))
	for i := range d.partitions {
		i := i
		tasks[i] = func(ctx context.Context, device int) error {
			p, err := d.applyTransforms(ctx, device, i)
			if err != nil {
				return err
			}
			out[i] = p
			return nil
		}
	}
	if err := runner.Run(ctx, tasks); err != nil {
		return nil, err
	}
	return FromPartitions(out), nil
}

// applyTransforms folds the pending transforms over partition i.
func (d *DocumentDataset) applyTransforms(ctx context.Context, device int, i int) (Partition, error) {
	p := d.partitions[i]
	for _, t := range d.transforms {
		var err error
		p, err = t(ctx, device, p)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", i, err)
		}
	}
	return p, nil
}

// Head returns the first n records in partition order. The dataset must be
// materialized.
func (d *DocumentDataset) Head(n int) ([]Record, error) {
	if len(d.transforms) > 0 {
		return nil, ErrNotComputed
	}
	out := make([]Record, 0, n)
	for _, p := range d.partitions {
		for _, rec := range p {
			if len(out) == n {
				return out, nil
			}
			out = append(out, rec)
		}
	}
	return out, nil
}
