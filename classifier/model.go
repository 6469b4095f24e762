package classifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime points the binding at the ONNX runtime shared library and
// initializes the environment. The environment is process-wide, so this runs
// at most once regardless of how many classifiers are constructed.
func initRuntime(library string) error {
	ortInitOnce.Do(func() {
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		if !ort.IsInitialized() {
			ortInitErr = ort.InitializeEnvironment()
		}
	})
	return ortInitErr
}

// OrtClassifier runs a sequence-classification ONNX model through the ONNX
// runtime. One session is created per device so that each cluster worker
// drives its own GPU.
type OrtClassifier struct {
	spec   Spec
	cfg    Config
	tk     *tokenizer.Tokenizer
	cache  *predictionCache
	logger *log.Logger

	mu       sync.Mutex
	sessions map[int]*ort.DynamicAdvancedSession
	closed   bool
}

// NewOrtClassifier loads the tokenizer and prepares the prediction cache.
// Sessions are created lazily on first use of a device.
func NewOrtClassifier(spec Spec, cfg Config, logger *log.Logger) (*OrtClassifier, error) {
	cfg.ApplyDefaults()
	if spec.ModelPath == "" {
		return nil, fmt.Errorf("%s classifier: model path is empty", spec.Type)
	}
	if len(spec.Labels) == 0 {
		return nil, fmt.Errorf("%s classifier: label set is empty", spec.Type)
	}
	if cfg.ModelID == "" {
		cfg.ModelID = filepath.Base(spec.ModelPath)
	}
	if err := initRuntime(cfg.OrtLibrary); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: cfg.MaxSeqLen,
		Strategy:  tokenizer.LongestFirst,
	})
	cache, err := newPredictionCache(cfg.CacheDir, cfg.ModelID, spec.Labels)
	if err != nil {
		return nil, err
	}
	return &OrtClassifier{
		spec:     spec,
		cfg:      cfg,
		tk:       tk,
		cache:    cache,
		logger:   logger,
		sessions: make(map[int]*ort.DynamicAdvancedSession),
	}, nil
}

// Column returns the record field the classifier writes.
func (o *OrtClassifier) Column() string { return o.spec.Column }

// Labels returns the model's ordered label set.
func (o *OrtClassifier) Labels() LabelSet { return o.spec.Labels }

// Close destroys all device sessions. Safe to call more than once.
func (o *OrtClassifier) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	var firstErr error
	for device, sess := range o.sessions {
		if err := sess.Destroy(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("destroy session for device %d: %w", device, err)
		}
	}
	o.sessions = nil
	return firstErr
}

// session returns the inference session bound to the given device, creating
// it on first use. Device -1 runs on CPU.
func (o *OrtClassifier) session(device int) (*ort.DynamicAdvancedSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, errors.New("classifier is closed")
	}
	if sess, ok := o.sessions[device]; ok {
		return sess, nil
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if device >= 0 {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("cuda provider options: %w", err)
		}
		if err := cudaOpts.Update(map[string]string{
			"device_id": strconv.Itoa(device),
		}); err != nil {
			cudaOpts.Destroy()
			return nil, fmt.Errorf("bind device %d: %w", device, err)
		}
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			cudaOpts.Destroy()
			return nil, fmt.Errorf("append cuda provider: %w", err)
		}
		cudaOpts.Destroy()
	}
	sess, err := ort.NewDynamicAdvancedSession(
		o.spec.ModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("open model %s: %w", o.spec.ModelPath, err)
	}
	o.sessions[device] = sess
	o.logf("%s classifier: session ready on device %d", o.spec.Type, device)
	return sess, nil
}

// PredictBatch scores texts on the given device. Cached texts are answered
// without touching the session; the rest run through the model in chunks of
// the configured batch size.
func (o *OrtClassifier) PredictBatch(ctx context.Context, device int, texts []string) ([]Prediction, error) {
	out := make([]Prediction, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	keys := make([]string, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		normalized := normalizeText(text)
		keys[i] = o.cache.key(normalized)
		if pred, ok := o.cache.get(keys[i]); ok {
			out[i] = pred
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, normalized)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	for start := 0; start < len(missTexts); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		preds, err := o.runBatch(ctx, device, missTexts[start:end])
		if err != nil {
			return nil, err
		}
		for j, pred := range preds {
			i := missIdx[start+j]
			out[i] = pred
			o.cache.put(keys[i], pred)
		}
	}
	return out, nil
}

func (o *OrtClassifier) runBatch(ctx context.Context, device int, texts []string) ([]Prediction, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	ids, mask, seqLen, err := o.encodeBatch(texts)
	if err != nil {
		return nil, err
	}
	sess, err := o.session(device)
	if err != nil {
		return nil, err
	}
	shape := ort.NewShape(int64(len(texts)), int64(seqLen))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := sess.Run([]ort.Value{idsTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("run %s model: %w", o.spec.Type, err)
	}
	logitsTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("run %s model: logits output is not float32", o.spec.Type)
	}
	defer logitsTensor.Destroy()

	logits := logitsTensor.GetData()
	numLabels := len(o.spec.Labels)
	if len(logits) != len(texts)*numLabels {
		return nil, fmt.Errorf("logits size %d does not match %d texts x %d labels",
			len(logits), len(texts), numLabels)
	}
	preds := make([]Prediction, len(texts))
	for i := range texts {
		row := logits[i*numLabels : (i+1)*numLabels]
		idx, score := argmaxSoftmax(row)
		preds[i] = Prediction{Label: o.spec.Labels[idx], Score: score}
	}
	return preds, nil
}

// encodeBatch tokenizes the texts and right-pads them to the batch longest.
func (o *OrtClassifier) encodeBatch(texts []string) (ids, mask []int64, seqLen int, err error) {
	encodings := make([]*tokenizer.Encoding, len(texts))
	for i, text := range texts {
		enc, err := o.tk.EncodeSingle(text, true)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("tokenize text %d: %w", i, err)
		}
		encodings[i] = enc
		if len(enc.Ids) > seqLen {
			seqLen = len(enc.Ids)
		}
	}
	if seqLen == 0 {
		seqLen = 1
	}
	ids = make([]int64, len(texts)*seqLen)
	mask = make([]int64, len(texts)*seqLen)
	for i, enc := range encodings {
		base := i * seqLen
		for j, id := range enc.Ids {
			ids[base+j] = int64(id)
			mask[base+j] = 1
		}
	}
	return ids, mask, seqLen, nil
}

// argmaxSoftmax returns the index of the largest logit and its softmax
// probability, computed with the usual max subtraction for stability.
func argmaxSoftmax(logits []float32) (int, float32) {
	maxIdx := 0
	maxVal := logits[0]
	for i, v := range logits {
		if v > maxVal {
			maxIdx = i
			maxVal = v
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - maxVal))
	}
	return maxIdx, float32(1 / sum)
}

func (o *OrtClassifier) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}
