// Package simple is a small pure-Go reference classifier over hashed entity
// features. Its checkpoints are produced by Save; relex does not train them,
// so the backend serves tests and pipeline dry runs.
package simple

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/Noofbiz/relex/datasets"
	"github.com/Noofbiz/relex/infer"
)

// CheckpointFile is the file name a checkpoint directory must contain.
const CheckpointFile = "model.gob"

// Config holds the hyperparameters of the reference classifier.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int

	// Buckets is the number of hash buckets per feature block. Token ids are
	// folded into Buckets slots for the subject, the object and the context.
	// Default 256.
	Buckets int

	// NumLabels is the number of relation classes (output width). Required.
	NumLabels int

	// Seed controls RNG for weight init. If zero, time-based seed is used.
	Seed int64
}

// Model is a small MLP over hashed bag-of-token features. It stands in for
// the transformer when no ONNX export is available and is cheap enough to run
// in tests. Weights are initialised randomly; checkpoints are gob files.
type Model struct {
	// Config used for initialization.
	Config Config

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	eval bool
}

var (
	_ infer.Classifier = (*Model)(nil)
	_ infer.Evaluator  = (*Model)(nil)
)

// NewModel creates a new Model instance with the provided configuration.
func NewModel(cfg Config) (*Model, error) {
	if cfg.NumLabels < 1 {
		return nil, errors.New("number of labels must be positive")
	}
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{64}
	}
	if cfg.Buckets == 0 {
		cfg.Buckets = 256
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, featureDim(cfg.Buckets))
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, cfg.NumLabels)

	m := &Model{Config: cfg, layerSizes: sizes}
	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in, out := sizes[l], sizes[l+1]
		// Xavier/Glorot uniform initialization
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		mat := make([][]float32, out)
		for j := range mat {
			row := make([]float32, in)
			for i := range row {
				row[i] = (rng.Float32()*2.0 - 1.0) * limit
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}
	return m, nil
}

// NumLabels returns the output width.
func (m *Model) NumLabels() int {
	return m.layerSizes[len(m.layerSizes)-1]
}

func featureDim(buckets int) int { return 3 * buckets }

// Features folds one padded batch row into a normalised bag of hashed token
// ids: [subject block | object block | context block]. Padding (attention 0)
// is ignored, so the result does not depend on the batch it came from.
func (m *Model) Features(b *datasets.Batch, row int) []float32 {
	k := m.Config.Buckets
	feat := make([]float32, featureDim(k))
	ids := b.Row(b.InputIDs, row)
	att := b.Row(b.AttentionMask, row)
	e1 := b.Row(b.E1Mask, row)
	e2 := b.Row(b.E2Mask, row)

	var n float32
	for j, id := range ids {
		if att[j] == 0 {
			continue
		}
		n++
		slot := int(uint64(id) % uint64(k))
		switch {
		case e1[j] == 1:
			feat[slot]++
		case e2[j] == 1:
			feat[k+slot]++
		default:
			feat[2*k+slot]++
		}
	}
	if n > 0 {
		for i := range feat {
			feat[i] /= n
		}
	}
	return feat
}

// activationReLU applies ReLU in-place over the slice.
func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// forwardSingle returns the output-layer activations (logits) for one input.
func (m *Model) forwardSingle(input []float32) ([]float32, error) {
	if len(input) != m.layerSizes[0] {
		return nil, errors.Errorf("input has dimension %d, expected %d", len(input), m.layerSizes[0])
	}
	act := input
	L := len(m.weights)
	for l := 0; l < L; l++ {
		W, b := m.weights[l], m.biases[l]
		pre := make([]float32, len(b))
		for j := range pre {
			sum := b[j]
			row := W[j]
			for i, v := range act {
				sum += row[i] * v
			}
			pre[j] = sum
		}
		// ReLU for hidden, linear for last layer
		if l < L-1 {
			activationReLU(pre)
		}
		act = pre
	}
	return act, nil
}

// Eval marks the model as being in evaluation mode. The model has no
// dropout or normalisation state, so this only records the call.
func (m *Model) Eval() { m.eval = true }

// Evaluating reports whether Eval was called.
func (m *Model) Evaluating() bool { return m.eval }

// Logits implements infer.Classifier.
func (m *Model) Logits(ctx context.Context, b *datasets.Batch) ([][]float32, error) {
	out := make([][]float32, b.Size)
	for i := range b.Size {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		logits, err := m.forwardSingle(m.Features(b, i))
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out[i] = logits
	}
	return out, nil
}

// Close implements infer.Classifier. There is nothing to release.
func (m *Model) Close() error { return nil }

// checkpoint is the on-disk layout of a model.
type checkpoint struct {
	Config     Config
	LayerSizes []int
	Weights    [][][]float32
	Biases     [][]float32
}

// Save writes the model to dir/model.gob, creating dir if needed. The write
// goes through a temp file and a rename so a partial checkpoint is never left
// behind.
func (m *Model) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}
	tmpFile, err := os.CreateTemp(dir, CheckpointFile+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp checkpoint")
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	cp := checkpoint{Config: m.Config, LayerSizes: m.layerSizes, Weights: m.weights, Biases: m.biases}
	if err := gob.NewEncoder(tmpFile).Encode(&cp); err != nil {
		return errors.Wrap(err, "encode checkpoint")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "close temp checkpoint")
	}
	if err := os.Rename(tmpName, filepath.Join(dir, CheckpointFile)); err != nil {
		return errors.Wrap(err, "rename temp checkpoint")
	}
	return nil
}

// Load reads dir/model.gob.
func Load(dir string) (*Model, error) {
	path := filepath.Join(dir, CheckpointFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read checkpoint %s", path)
	}
	var cp checkpoint
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cp); err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoint %s", path)
	}
	if len(cp.LayerSizes) < 2 || len(cp.Weights) != len(cp.LayerSizes)-1 || len(cp.Biases) != len(cp.Weights) {
		return nil, errors.Errorf("checkpoint %s: inconsistent layer layout", path)
	}
	for l, W := range cp.Weights {
		if len(W) != cp.LayerSizes[l+1] || len(cp.Biases[l]) != cp.LayerSizes[l+1] {
			return nil, errors.Errorf("checkpoint %s: layer %d has wrong output size", path, l)
		}
		for _, row := range W {
			if len(row) != cp.LayerSizes[l] {
				return nil, errors.Errorf("checkpoint %s: layer %d has wrong input size", path, l)
			}
		}
	}
	if cp.LayerSizes[0] != featureDim(cp.Config.Buckets) {
		return nil, errors.Errorf("checkpoint %s: input size %d does not match %d buckets", path, cp.LayerSizes[0], cp.Config.Buckets)
	}
	return &Model{Config: cp.Config, layerSizes: cp.LayerSizes, weights: cp.Weights, biases: cp.Biases}, nil
}

// Loader opens simple checkpoints for the inference runner. The model only
// runs on the CPU; the device is accepted and ignored.
type Loader struct{}

var _ infer.Loader = Loader{}

func (Loader) Load(dir string, _ infer.Device) (infer.Classifier, error) {
	m, err := Load(dir)
	if err != nil {
		return nil, err
	}
	return m, nil
}
