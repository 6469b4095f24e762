package classifier

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrUnknownClassifier is returned when the configured classifier type
// matches neither recognized name.
var ErrUnknownClassifier = errors.New("unknown classifier type")

// Classifier scores batches of texts. The device argument selects which
// worker-bound session runs the batch; -1 means CPU.
type Classifier interface {
	PredictBatch(ctx context.Context, device int, texts []string) ([]Prediction, error)
	Column() string
	Labels() LabelSet
	Close() error
}

// Spec binds a classifier type to its model path, label set and output
// column. It is resolved from a type name before any model I/O happens.
type Spec struct {
	Type      string
	ModelPath string
	Labels    LabelSet
	Column    string
}

// Resolve maps a classifier type name onto its specification.
func Resolve(name string, cfg Config) (Spec, error) {
	switch name {
	case TypeDomain:
		return Spec{
			Type:      TypeDomain,
			ModelPath: cfg.DomainModelPath,
			Labels:    DomainLabels(),
			Column:    DomainColumn,
		}, nil
	case TypeQuality:
		return Spec{
			Type:      TypeQuality,
			ModelPath: cfg.QualityModelPath,
			Labels:    QualityLabels(),
			Column:    QualityColumn,
		}, nil
	default:
		return Spec{}, fmt.Errorf("%w: %q (expected %q or %q)",
			ErrUnknownClassifier, name, TypeDomain, TypeQuality)
	}
}

// ForName resolves the type name and initializes the backing ONNX session
// and tokenizer. The unknown-name branch fails before any file is touched.
func ForName(name string, cfg Config, logger *log.Logger) (Classifier, error) {
	spec, err := Resolve(name, cfg)
	if err != nil {
		return nil, err
	}
	return NewOrtClassifier(spec, cfg, logger)
}
