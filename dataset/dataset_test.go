package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text %d", i)
	}
	return out
}

func TestFromTextsPartitioning(t *testing.T) {
	t.Parallel()

	ds := FromTexts(texts(10), 3)
	if ds.NumPartitions() != 3 {
		t.Fatalf("partitions = %d, want 3", ds.NumPartitions())
	}
	if ds.Len() != 10 {
		t.Fatalf("len = %d, want 10", ds.Len())
	}
}

func TestFromTextsClampsPartitions(t *testing.T) {
	t.Parallel()

	if got := FromTexts(texts(2), 8).NumPartitions(); got != 2 {
		t.Fatalf("npartitions should clamp to record count, got %d", got)
	}
	if got := FromTexts(texts(5), 0).NumPartitions(); got != 1 {
		t.Fatalf("npartitions should clamp up to 1, got %d", got)
	}
}

func TestWithTransformIsLazy(t *testing.T) {
	t.Parallel()

	calls := 0
	base := FromTexts(texts(4), 2)
	derived := base.WithTransform(func(ctx context.Context, device int, p Partition) (Partition, error) {
		calls++
		return p, nil
	})

	if calls != 0 {
		t.Fatalf("transform ran before Compute: %d calls", calls)
	}
	if _, err := base.Head(1); err != nil {
		t.Fatalf("base dataset should stay materialized: %v", err)
	}
	if _, err := derived.Head(1); !errors.Is(err, ErrNotComputed) {
		t.Fatalf("expected ErrNotComputed, got %v", err)
	}

	out, err := derived.Compute(context.Background(), SerialRunner{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if calls != 2 {
		t.Fatalf("transform should run once per partition, got %d calls", calls)
	}
	if _, err := out.Head(1); err != nil {
		t.Fatalf("computed dataset head: %v", err)
	}
}

func TestComputePreservesOrder(t *testing.T) {
	t.Parallel()

	ds := FromTexts(texts(9), 3).WithTransform(func(ctx context.Context, device int, p Partition) (Partition, error) {
		out := make(Partition, len(p))
		for i, rec := range p {
			clone := rec.Clone()
			clone["upper"] = strings.ToUpper(clone[TextField].(string))
			out[i] = clone
		}
		return out, nil
	})

	computed, err := ds.Compute(context.Background(), SerialRunner{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	rows, err := computed.Head(9)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if len(rows) != 9 {
		t.Fatalf("head returned %d rows", len(rows))
	}
	for _, row := range rows {
		want := strings.ToUpper(row[TextField].(string))
		if row["upper"] != want {
			t.Fatalf("row out of sync: %v", row)
		}
	}
}

func TestComputeErrorNamesPartition(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ds := FromTexts(texts(4), 2).WithTransform(func(ctx context.Context, device int, p Partition) (Partition, error) {
		return nil, boom
	})
	_, err := ds.Compute(context.Background(), SerialRunner{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "partition") {
		t.Fatalf("error should name the partition: %v", err)
	}
}

func TestComputeWithoutTransformsReturnsReceiver(t *testing.T) {
	t.Parallel()

	ds := FromTexts(texts(3), 1)
	out, err := ds.Compute(context.Background(), SerialRunner{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if out != ds {
		t.Fatal("compute with no transforms should return the receiver")
	}
}

func TestHeadStopsAtN(t *testing.T) {
	t.Parallel()

	rows, err := FromTexts(texts(10), 4).Head(3)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("head returned %d rows, want 3", len(rows))
	}
}

func TestSerialRunnerStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SerialRunner{}.Run(ctx, []Task{
		func(ctx context.Context, device int) error {
			t.Fatal("task ran despite canceled context")
			return nil
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
