package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const partSuffix = ".part.jsonl"

// maxLineBytes bounds a single JSON-lines record when reading back.
const maxLineBytes = 16 << 20

// ToJSON materializes the dataset through the runner and writes one
// JSON-lines file per partition under dir (0000.part.jsonl, 0001.part.jsonl,
// ...). Each file is written to a temp name and renamed into place.
func (d *DocumentDataset) ToJSON(ctx context.Context, runner Runner, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tasks := make([]Task, len(d.partitions))
	for i := range d.partitions {
		i := i
		tasks[i] = func(ctx context.Context, device int) error {
			p, err := d.applyTransforms(ctx, device, i)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, fmt.Sprintf("%04d%s", i, partSuffix))
			if err := writePartition(path, p); err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}
			return nil
		}
	}
	return runner.Run(ctx, tasks)
}

func writePartition(path string, p Partition) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create part file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i, rec := range p {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush part file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close part file: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReadJSON loads every JSON-lines file under dir, one partition per file, in
// lexical filename order. Both *.part.jsonl and plain *.jsonl files count.
func ReadJSON(dir string) (*DocumentDataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no .jsonl files under %s", dir)
	}
	sort.Strings(names)
	parts := make([]Partition, 0, len(names))
	for _, name := range names {
		p, err := readPartition(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		parts = append(parts, p)
	}
	return FromPartitions(parts), nil
}

func readPartition(path string) (Partition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var p Partition
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p = append(p, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return p, nil
}
