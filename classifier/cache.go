package classifier

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// predictionCache memoizes per-text predictions in memory and, when a cache
// directory is configured, on disk. Disk entries are 8 bytes: the label index
// followed by the score bits, both little endian.
type predictionCache struct {
	mu      sync.RWMutex
	mem     map[string]Prediction
	dir     string
	modelID string
	labels  LabelSet
}

func newPredictionCache(dir, modelID string, labels LabelSet) (*predictionCache, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &predictionCache{
		mem:     make(map[string]Prediction),
		dir:     dir,
		modelID: modelID,
		labels:  labels,
	}, nil
}

func (c *predictionCache) key(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.modelID)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *predictionCache) get(key string) (Prediction, bool) {
	c.mu.RLock()
	pred, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return pred, true
	}
	pred, ok = c.loadFromDisk(key)
	if ok {
		c.mu.Lock()
		c.mem[key] = pred
		c.mu.Unlock()
	}
	return pred, ok
}

func (c *predictionCache) put(key string, pred Prediction) {
	c.mu.Lock()
	c.mem[key] = pred
	c.mu.Unlock()
	_ = c.saveToDisk(key, pred)
}

func (c *predictionCache) loadFromDisk(key string) (Prediction, bool) {
	if c.dir == "" {
		return Prediction{}, false
	}
	data, err := os.ReadFile(filepath.Join(c.dir, key+".bin"))
	if err != nil || len(data) != 8 {
		return Prediction{}, false
	}
	idx := int(binary.LittleEndian.Uint32(data[:4]))
	if idx < 0 || idx >= len(c.labels) {
		return Prediction{}, false
	}
	score := math.Float32frombits(binary.LittleEndian.Uint32(data[4:]))
	return Prediction{Label: c.labels[idx], Score: score}, true
}

func (c *predictionCache) saveToDisk(key string, pred Prediction) error {
	if c.dir == "" {
		return nil
	}
	idx := c.labels.Index(pred.Label)
	if idx < 0 {
		return fmt.Errorf("label %q not in label set", pred.Label)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[:4], uint32(idx))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(pred.Score))
	path := filepath.Join(c.dir, key+".bin")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
