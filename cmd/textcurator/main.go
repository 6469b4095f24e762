package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v2"

	"textcurator/classifier"
	"textcurator/dataset"
	"textcurator/internal/cluster"
	"textcurator/internal/config"
)

type cliOptions struct {
	classifierName string
	inputPath      string
	outputDir      string
	npartitions    int
	head           int
	keep           bool
	quiet          bool
}

// sampleTexts is the built-in demonstration dataset used when no input file
// is given.
var sampleTexts = []string{
	"Quantum computing is set to revolutionize the field of cryptography.",
	"Investing in index funds is a popular strategy for long-term financial growth.",
	"Recent advancements in gene therapy offer new hope for treating genetic disorders.",
	"Online learning platforms have transformed the way students access educational resources.",
	"Traveling to Europe during the off-season can be a more budget-friendly option.",
	"Training regimens for athletes have become more sophisticated with data analytics.",
	"Streaming services are changing the way people consume television and film content.",
	"Vegan recipes have gained popularity as more people adopt plant-based diets.",
	"Climate change research relies heavily on global temperature data sets.",
	"Home gardening has seen a surge in popularity during the past few years.",
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		log.Fatalf("textcurator: %v", err)
	}
}

func parseFlags() cliOptions {
	var opts cliOptions
	flag.StringVar(&opts.classifierName, "classifier", "", "Classifier to run: domain or quality (default from config)")
	flag.StringVar(&opts.inputPath, "input", "", "Text file with one document per line (default: built-in sample texts)")
	flag.StringVar(&opts.outputDir, "output-dir", "", "Directory for the JSON-lines result files (default from config)")
	flag.IntVar(&opts.npartitions, "npartitions", 0, "Number of dataset partitions (default: one per worker)")
	flag.IntVar(&opts.head, "head", 5, "How many result rows to print after reading the output back")
	flag.BoolVar(&opts.keep, "keep", false, "Keep the output directory instead of deleting it at the end")
	flag.BoolVar(&opts.quiet, "quiet", false, "Suppress runtime log output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	return opts
}

func run(opts cliOptions) error {
	cfg := config.Load()
	if opts.classifierName != "" {
		cfg.Classifier = opts.classifierName
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.quiet {
		cfg.Quiet = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	if cfg.Quiet {
		logger.SetOutput(io.Discard)
	}

	ctx := context.Background()

	pool := cluster.NewLocal(cluster.Config{
		Devices:    cfg.Cluster.Devices,
		QueueDepth: cfg.Cluster.QueueDepth,
	}, logger)
	defer pool.Close()
	client := pool.Client()

	texts := sampleTexts
	if opts.inputPath != "" {
		var err error
		texts, err = readLines(opts.inputPath)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}
	npartitions := opts.npartitions
	if npartitions <= 0 {
		npartitions = pool.NumWorkers()
	}
	ds := dataset.FromTexts(texts, npartitions)
	logger.Printf("dataset: %d texts in %d partitions", ds.Len(), ds.NumPartitions())

	clf, err := classifier.ForName(cfg.Classifier, cfg.ClassifierConfig(), logger)
	if err != nil {
		if errors.Is(err, classifier.ErrUnknownClassifier) {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return fmt.Errorf("init %s classifier: %w", cfg.Classifier, err)
	}
	defer clf.Close()

	classified := ds.WithTransform(dataset.ClassifyOp(clf, cfg.Models.BatchSize))

	runner := dataset.Runner(client)
	if !cfg.Quiet {
		runner = &progressRunner{inner: client}
	}
	if err := classified.ToJSON(ctx, runner, cfg.OutputDir); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	logger.Printf("results written to %s", cfg.OutputDir)

	back, err := dataset.ReadJSON(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("read results back: %w", err)
	}
	rows, err := back.Head(opts.head)
	if err != nil {
		return fmt.Errorf("inspect results: %w", err)
	}
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("format result row: %w", err)
		}
		fmt.Println(string(line))
	}

	if opts.keep {
		return nil
	}
	if err := os.RemoveAll(cfg.OutputDir); err != nil {
		return fmt.Errorf("clean up output dir: %w", err)
	}
	logger.Printf("removed %s", cfg.OutputDir)
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("input file contains no texts")
	}
	return out, nil
}

// progressRunner draws a progress bar over the task set while delegating
// scheduling to the wrapped runner.
type progressRunner struct {
	inner dataset.Runner
}

func (r *progressRunner) Run(ctx context.Context, tasks []dataset.Task) error {
	bar := progressbar.New(len(tasks))
	wrapped := make([]dataset.Task, len(tasks))
	for i, task := range tasks {
		task := task
		wrapped[i] = func(ctx context.Context, device int) error {
			if err := task(ctx, device); err != nil {
				return err
			}
			_ = bar.Add(1)
			return nil
		}
	}
	err := r.inner.Run(ctx, wrapped)
	fmt.Println()
	return err
}
