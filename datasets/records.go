package datasets

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/kaptinlin/jsonrepair"
	"github.com/pkg/errors"

	"github.com/Noofbiz/relex/labels"
)

var (
	// ErrDataFormat is returned when the input table is missing columns or
	// cannot be decoded.
	ErrDataFormat = errors.New("data format error")
	// ErrMalformedEntity is returned when an entity field cannot be parsed
	// into a {word, type} structure.
	ErrMalformedEntity = errors.New("malformed entity")
)

// Mode selects how labels are treated during preprocessing.
type Mode string

const (
	// ModeTrain converts labels to class indices.
	ModeTrain Mode = "train"
	// ModeInference passes labels through untouched.
	ModeInference Mode = "inference"
)

// requiredColumns must be present in every input table. label is optional.
var requiredColumns = []string{"id", "sentence", "subject_entity", "object_entity"}

// Record is one row of the input table.
type Record struct {
	ID            string `csv:"id"`
	Sentence      string `csv:"sentence"`
	SubjectEntity string `csv:"subject_entity"`
	ObjectEntity  string `csv:"object_entity"`
	Label         string `csv:"label"`
}

// Entity is the decoded form of a subject_entity / object_entity field.
// StartIdx and EndIdx are inclusive character offsets into the sentence.
type Entity struct {
	Word     string `json:"word"`
	Type     string `json:"type"`
	StartIdx *int   `json:"start_idx"`
	EndIdx   *int   `json:"end_idx"`
}

// ParseEntity decodes a stringified entity structure such as
// {'word': 'Acme Corp', 'type': 'ORG'}. The field uses Python literal syntax:
// it is checked strictly, then its quoting and constants are repaired into
// JSON before decoding. Both word and type are required.
func ParseEntity(field string) (Entity, error) {
	var e Entity
	field = strings.TrimSpace(field)
	if !strings.HasPrefix(field, "{") || !strings.HasSuffix(field, "}") {
		return e, errors.Wrapf(ErrMalformedEntity, "not a structure: %q", field)
	}
	if err := checkDictLiteral(field); err != nil {
		return e, errors.Wrapf(ErrMalformedEntity, "%q: %v", field, err)
	}
	repaired, err := jsonrepair.JSONRepair(field)
	if err != nil {
		return e, errors.Wrapf(ErrMalformedEntity, "%q: %v", field, err)
	}
	if err := json.Unmarshal([]byte(repaired), &e); err != nil {
		return e, errors.Wrapf(ErrMalformedEntity, "%q: %v", field, err)
	}
	if e.Word == "" {
		return e, errors.Wrapf(ErrMalformedEntity, "missing word in %q", field)
	}
	if e.Type == "" {
		return e, errors.Wrapf(ErrMalformedEntity, "missing type in %q", field)
	}
	return e, nil
}

// ReadRecords loads a relation extraction table from a CSV file.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	header, err := readHeader(data)
	if err != nil {
		return nil, errors.Wrapf(ErrDataFormat, "%s: %v", path, err)
	}
	if err := requireColumns(header, requiredColumns); err != nil {
		return nil, errors.Wrapf(ErrDataFormat, "%s: %v", path, err)
	}

	var records []Record
	if err := gocsv.UnmarshalBytes(data, &records); err != nil {
		return nil, errors.Wrapf(ErrDataFormat, "decode %s: %v", path, err)
	}
	return records, nil
}

// WriteRecords writes records to a CSV file with the input table header.
func WriteRecords(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&records, f); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// DataHelper loads a raw table once and prepares it for the model.
type DataHelper struct {
	raw []Record
}

// NewDataHelper reads the table at path.
func NewDataHelper(path string) (*DataHelper, error) {
	records, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	return &DataHelper{raw: records}, nil
}

// NewDataHelperFromRecords wraps records that are already in memory.
func NewDataHelperFromRecords(records []Record) *DataHelper {
	return &DataHelper{raw: records}
}

// Raw returns the table as read. Callers must not modify it.
func (h *DataHelper) Raw() []Record {
	return h.raw
}

// IDs returns the record identifiers in table order.
func (h *DataHelper) IDs() []string {
	ids := make([]string, len(h.raw))
	for i, r := range h.raw {
		ids[i] = r.ID
	}
	return ids
}

// Preprocessed is the table after entity extraction. Records hold the entity
// words in place of the raw structures.
type Preprocessed struct {
	Records  []Record
	Subjects []Entity
	Objects  []Entity

	// Labels holds class indices in train mode and is nil otherwise.
	Labels []int
	// RawLabels holds the label column as read.
	RawLabels []string
}

// Preprocess extracts entity words and, in train mode, converts labels with
// dict. In inference mode dict may be nil.
func (h *DataHelper) Preprocess(mode Mode, dict *labels.Dictionary) (*Preprocessed, error) {
	return Preprocess(h.raw, mode, dict)
}

// Preprocess is the table-independent form of DataHelper.Preprocess.
func Preprocess(raw []Record, mode Mode, dict *labels.Dictionary) (*Preprocessed, error) {
	p := &Preprocessed{
		Records:   make([]Record, len(raw)),
		Subjects:  make([]Entity, len(raw)),
		Objects:   make([]Entity, len(raw)),
		RawLabels: make([]string, len(raw)),
	}

	for i, r := range raw {
		subj, err := ParseEntity(r.SubjectEntity)
		if err != nil {
			return nil, errors.Wrapf(err, "record %s subject_entity", r.ID)
		}
		obj, err := ParseEntity(r.ObjectEntity)
		if err != nil {
			return nil, errors.Wrapf(err, "record %s object_entity", r.ID)
		}
		p.Subjects[i] = subj
		p.Objects[i] = obj
		p.Records[i] = Record{
			ID:            r.ID,
			Sentence:      r.Sentence,
			SubjectEntity: subj.Word,
			ObjectEntity:  obj.Word,
			Label:         r.Label,
		}
		p.RawLabels[i] = r.Label
	}

	switch mode {
	case ModeTrain:
		if dict == nil {
			return nil, errors.New("train mode requires a label dictionary")
		}
		idx, err := dict.Indices(p.RawLabels)
		if err != nil {
			return nil, err
		}
		p.Labels = idx
	case ModeInference:
	default:
		return nil, errors.Errorf("unknown mode %q", mode)
	}

	return p, nil
}

// ConvertLabelsByDict converts labels with the dictionary stored at path,
// reading the file on every call.
func (h *DataHelper) ConvertLabelsByDict(raw []string, path string) ([]int, error) {
	return labels.ConvertLabelsByDict(raw, path)
}
