// Package onnx runs an exported relation classifier through ONNX Runtime.
//
// A checkpoint directory holds model.onnx with int64 inputs named after the
// batch fields (input_ids, attention_mask, e1_mask, e2_mask and optionally
// token_type_ids), each shaped [batch, seq], and one float32 output
// "logits" shaped [batch, labels].
package onnx

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Noofbiz/relex/datasets"
	"github.com/Noofbiz/relex/infer"
)

// ModelFile is the graph file a checkpoint directory must contain.
const ModelFile = "model.onnx"

// ErrModelNotFound is returned when a checkpoint directory has no graph.
var ErrModelNotFound = errors.New("onnx model not found")

// DefaultInputs is the input list of a graph exported without token type ids.
var DefaultInputs = []string{"input_ids", "attention_mask", "e1_mask", "e2_mask"}

// Config describes the runtime and the graph signature.
type Config struct {
	// SharedLibraryPath locates libonnxruntime. Empty uses the
	// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable, then the
	// library's default.
	SharedLibraryPath string
	// IntraOpThreads bounds per-operator parallelism; 0 keeps the default.
	IntraOpThreads int
	// Inputs lists the graph input names in order. Default DefaultInputs.
	Inputs []string
	// Output is the logits output name. Default "logits".
	Output string
	// NumLabels is the width of the logits output. Required.
	NumLabels int
}

func (c Config) withDefaults() Config {
	if len(c.Inputs) == 0 {
		c.Inputs = DefaultInputs
	}
	if c.Output == "" {
		c.Output = "logits"
	}
	if c.SharedLibraryPath == "" {
		c.SharedLibraryPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	return c
}

var env struct {
	sync.Mutex
	ready bool
}

// initEnvironment initialises the process-wide runtime once.
func initEnvironment(libPath string) error {
	env.Lock()
	defer env.Unlock()
	if env.ready {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initialize onnxruntime")
	}
	env.ready = true
	return nil
}

// Shutdown destroys the runtime environment. Sessions must be closed first.
func Shutdown() error {
	env.Lock()
	defer env.Unlock()
	if !env.ready {
		return nil
	}
	env.ready = false
	return ort.DestroyEnvironment()
}

func sessionOptions(cfg Config, dev infer.Device) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "session options")
	}
	if dev.Kind == infer.CUDA {
		if err := withCUDAProvider(options, dev.ID); err != nil {
			options.Destroy()
			return nil, err
		}
	}
	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "intra op threads")
		}
	}
	return options, nil
}

func withCUDAProvider(options *ort.SessionOptions, deviceID int) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return errors.Wrap(err, "cuda provider options")
	}
	defer cudaOptions.Destroy()

	if err := cudaOptions.Update(map[string]string{
		"device_id": strconv.Itoa(deviceID),
	}); err != nil {
		return errors.Wrap(err, "cuda provider options")
	}
	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		return errors.Wrap(err, "append cuda provider")
	}
	return nil
}

// ProbeCUDA reports whether the runtime can use dev. It is meant for
// infer.AutoSelector.
func ProbeCUDA(cfg Config) func(infer.Device) error {
	cfg = cfg.withDefaults()
	return func(dev infer.Device) error {
		if err := initEnvironment(cfg.SharedLibraryPath); err != nil {
			return err
		}
		options, err := sessionOptions(cfg, dev)
		if err != nil {
			return err
		}
		return options.Destroy()
	}
}

// Loader opens ONNX checkpoints.
type Loader struct {
	Config Config
}

var _ infer.Loader = Loader{}

// Load implements infer.Loader.
func (l Loader) Load(dir string, dev infer.Device) (infer.Classifier, error) {
	c, err := Open(dir, dev, l.Config)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Classifier is one ONNX Runtime session.
type Classifier struct {
	cfg     Config
	device  infer.Device
	session *ort.DynamicAdvancedSession
}

var _ infer.Classifier = (*Classifier)(nil)

// Open creates a session for dir/model.onnx on dev.
func Open(dir string, dev infer.Device, cfg Config) (*Classifier, error) {
	cfg = cfg.withDefaults()
	if cfg.NumLabels < 1 {
		return nil, errors.New("number of labels must be positive")
	}
	path := filepath.Join(dir, ModelFile)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrModelNotFound, "%s: %v", path, err)
	}
	if err := initEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}

	options, err := sessionOptions(cfg, dev)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(path, cfg.Inputs, []string{cfg.Output}, options)
	if err != nil {
		return nil, errors.Wrapf(err, "create session for %s", path)
	}
	return &Classifier{cfg: cfg, device: dev, session: session}, nil
}

// Device returns the device the session runs on.
func (c *Classifier) Device() infer.Device { return c.device }

// feeds returns the batch buffer for each graph input, in order.
func feeds(b *datasets.Batch, names []string) ([][]int64, error) {
	out := make([][]int64, len(names))
	for i, name := range names {
		switch name {
		case "input_ids":
			out[i] = b.InputIDs
		case "attention_mask":
			out[i] = b.AttentionMask
		case "token_type_ids":
			out[i] = b.TokenTypeIDs
		case "e1_mask":
			out[i] = b.E1Mask
		case "e2_mask":
			out[i] = b.E2Mask
		default:
			return nil, errors.Errorf("unsupported graph input %q", name)
		}
	}
	return out, nil
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			_ = v.Destroy()
		}
	}
}

// Logits implements infer.Classifier.
func (c *Classifier) Logits(ctx context.Context, b *datasets.Batch) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.Size == 0 {
		return nil, nil
	}
	bufs, err := feeds(b, c.cfg.Inputs)
	if err != nil {
		return nil, err
	}

	shape := ort.NewShape(b.Shape()...)
	inputs := make([]ort.Value, 0, len(bufs))
	defer func() { destroyValues(inputs) }()
	for i, buf := range bufs {
		t, err := ort.NewTensor[int64](shape, buf)
		if err != nil {
			return nil, errors.Wrapf(err, "input %s", c.cfg.Inputs[i])
		}
		inputs = append(inputs, t)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(b.Size), int64(c.cfg.NumLabels)))
	if err != nil {
		return nil, errors.Wrap(err, "allocate logits")
	}
	defer output.Destroy()

	if err := c.session.Run(inputs, []ort.Value{output}); err != nil {
		return nil, errors.Wrap(err, "run session")
	}

	data := output.GetData()
	logits := make([][]float32, b.Size)
	for i := range logits {
		row := make([]float32, c.cfg.NumLabels)
		copy(row, data[i*c.cfg.NumLabels:(i+1)*c.cfg.NumLabels])
		logits[i] = row
	}
	return logits, nil
}

// Close destroys the session and frees the device memory it holds.
func (c *Classifier) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}
