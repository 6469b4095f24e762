package dataset

import (
	"context"
	"fmt"

	"textcurator/classifier"
)

// ClassifyOp returns the transform that scores each record's text field and
// stores the winning label under the classifier's column. Records are cloned
// before mutation so shared partitions stay untouched.
func ClassifyOp(c classifier.Classifier, batchSize int) Transform {
	if batchSize <= 0 {
		batchSize = 256
	}
	return func(ctx context.Context, device int, p Partition) (Partition, error) {
		texts := make([]string, len(p))
		for i, rec := range p {
			text, ok := rec[TextField].(string)
			if !ok {
				return nil, fmt.Errorf("record %d: missing or non-string %q field", i, TextField)
			}
			texts[i] = text
		}
		out := make(Partition, len(p))
		column := c.Column()
		for start := 0; start < len(texts); start += batchSize {
			end := start + batchSize
			if end > len(texts) {
				end = len(texts)
			}
			preds, err := c.PredictBatch(ctx, device, texts[start:end])
			if err != nil {
				return nil, fmt.Errorf("predict batch at %d: %w", start, err)
			}
			if len(preds) != end-start {
				return nil, fmt.Errorf("predict batch at %d: got %d predictions for %d texts",
					start, len(preds), end-start)
			}
			for j, pred := range preds {
				rec := p[start+j].Clone()
				rec[column] = pred.Label
				out[start+j] = rec
			}
		}
		return out, nil
	}
}
