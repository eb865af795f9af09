package labels

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownLabel is returned when a label or index is not part of the dictionary.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrNotFound is returned when the dictionary file does not exist.
	ErrNotFound = errors.New("dictionary not found")
	// ErrInvalid is returned when a persisted dictionary is not a dense bijection.
	ErrInvalid = errors.New("invalid dictionary")
)

// Dictionary is an immutable bidirectional mapping between relation labels
// and dense class indices [0, n).
type Dictionary struct {
	toNum   map[string]int
	toLabel []string
}

// gobFormat is the on-disk layout of the binary dictionary. Both directions
// are stored, matching the label_to_num / num_to_label pair shipped with
// trained models.
type gobFormat struct {
	LabelToNum map[string]int
	NumToLabel map[int]string
}

// New builds a dictionary from an ordered list of labels. The position of a
// label in the list becomes its index.
func New(labels []string) (*Dictionary, error) {
	m := make(map[string]int, len(labels))
	for i, l := range labels {
		m[l] = i
	}
	return fromMap(m)
}

func fromMap(m map[string]int) (*Dictionary, error) {
	if len(m) == 0 {
		return nil, errors.Wrap(ErrInvalid, "empty dictionary")
	}
	toLabel := make([]string, len(m))
	seen := make([]bool, len(m))
	for l, idx := range m {
		if idx < 0 || idx >= len(m) {
			return nil, errors.Wrapf(ErrInvalid, "index %d of %q outside [0, %d)", idx, l, len(m))
		}
		if seen[idx] {
			return nil, errors.Wrapf(ErrInvalid, "index %d assigned twice", idx)
		}
		seen[idx] = true
		toLabel[idx] = l
	}
	toNum := make(map[string]int, len(m))
	for l, idx := range m {
		toNum[l] = idx
	}
	return &Dictionary{toNum: toNum, toLabel: toLabel}, nil
}

// Load reads a dictionary from path. The format is chosen by extension:
// .json and .yaml/.yml hold a label -> index object, anything else is
// treated as the gob binary format.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to read dictionary %s", path)
	}

	m := make(map[string]int)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrapf(ErrInvalid, "decode %s: %v", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrapf(ErrInvalid, "decode %s: %v", path, err)
		}
	default:
		var gf gobFormat
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&gf); err != nil {
			return nil, errors.Wrapf(ErrInvalid, "decode %s: %v", path, err)
		}
		m = gf.LabelToNum
		// the inverse map must agree with the forward one
		for idx, l := range gf.NumToLabel {
			if got, ok := m[l]; !ok || got != idx {
				return nil, errors.Wrapf(ErrInvalid, "inverse mapping disagrees for %q", l)
			}
		}
	}

	d, err := fromMap(m)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return d, nil
}

// Save writes the dictionary to path using the format implied by the
// extension. The write is atomic: a temp file is renamed over the target.
func (d *Dictionary) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp dictionary file")
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		enc := json.NewEncoder(tmpFile)
		enc.SetIndent("", "  ")
		err = enc.Encode(d.toNum)
	case ".yaml", ".yml":
		err = yaml.NewEncoder(tmpFile).Encode(d.toNum)
	default:
		gf := gobFormat{LabelToNum: d.toNum, NumToLabel: make(map[int]string, len(d.toLabel))}
		for i, l := range d.toLabel {
			gf.NumToLabel[i] = l
		}
		err = gob.NewEncoder(tmpFile).Encode(&gf)
	}
	if err != nil {
		return errors.Wrapf(err, "encode dictionary %s", path)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "close temp dictionary file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "rename temp dictionary to target")
	}
	return nil
}

// Len returns the number of classes.
func (d *Dictionary) Len() int {
	return len(d.toLabel)
}

// Index returns the class index of label.
func (d *Dictionary) Index(label string) (int, error) {
	idx, ok := d.toNum[label]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownLabel, "%q", label)
	}
	return idx, nil
}

// Label returns the label for class index idx.
func (d *Dictionary) Label(idx int) (string, error) {
	if idx < 0 || idx >= len(d.toLabel) {
		return "", errors.Wrapf(ErrUnknownLabel, "index %d", idx)
	}
	return d.toLabel[idx], nil
}

// Indices converts labels to class indices. The first unmapped label fails
// the whole conversion.
func (d *Dictionary) Indices(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		idx, err := d.Index(l)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		out[i] = idx
	}
	return out, nil
}

// Labels converts class indices back to label strings.
func (d *Dictionary) Labels(indices []int) ([]string, error) {
	out := make([]string, len(indices))
	for i, idx := range indices {
		l, err := d.Label(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		out[i] = l
	}
	return out, nil
}

// All returns the labels ordered by index.
func (d *Dictionary) All() []string {
	out := make([]string, len(d.toLabel))
	copy(out, d.toLabel)
	return out
}

// ConvertLabelsByDict loads the dictionary at path and converts labels with
// it. The file is read on every call; long-running callers should Load once
// and use Indices instead.
func ConvertLabelsByDict(labels []string, path string) ([]int, error) {
	d, err := Load(path)
	if err != nil {
		return nil, err
	}
	return d.Indices(labels)
}
