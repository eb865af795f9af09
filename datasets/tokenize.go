package datasets

import (
	"github.com/pkg/errors"
)

// EntitySeparator joins the subject and object words in the first segment.
const EntitySeparator = "[SEP]"

// Tokenizer encodes a sentence pair with truncation already configured.
type Tokenizer interface {
	EncodePair(a, b string) (Encoding, error)
}

// Encoding is the tokenizer output for one pair.
//
// SequenceIDs holds 0 for tokens of the first segment, 1 for the second and
// -1 for special tokens. Offsets are byte spans into the token's own segment.
type Encoding struct {
	IDs           []int
	TypeIDs       []int
	AttentionMask []int
	SequenceIDs   []int
	Offsets       [][2]int
}

// Len returns the number of tokens.
func (e Encoding) Len() int { return len(e.IDs) }

func (e Encoding) validate() error {
	n := len(e.IDs)
	if len(e.TypeIDs) != n || len(e.AttentionMask) != n || len(e.SequenceIDs) != n || len(e.Offsets) != n {
		return errors.Errorf("ragged encoding: ids=%d type=%d mask=%d seq=%d offsets=%d",
			n, len(e.TypeIDs), len(e.AttentionMask), len(e.SequenceIDs), len(e.Offsets))
	}
	return nil
}

// PairText returns the first segment for a subject/object pair.
func PairText(subject, object string) string {
	return subject + EntitySeparator + object
}

// Tokenize encodes every preprocessed record and derives the entity masks.
// Labels are attached when pre carries class indices.
func (h *DataHelper) Tokenize(pre *Preprocessed, tok Tokenizer) ([]Example, error) {
	return Tokenize(pre, tok)
}

// Tokenize is the table-independent form of DataHelper.Tokenize.
func Tokenize(pre *Preprocessed, tok Tokenizer) ([]Example, error) {
	if pre.Labels != nil && len(pre.Labels) != len(pre.Records) {
		return nil, errors.Errorf("%d labels for %d records", len(pre.Labels), len(pre.Records))
	}

	out := make([]Example, len(pre.Records))
	for i, r := range pre.Records {
		enc, err := tok.EncodePair(PairText(pre.Subjects[i].Word, pre.Objects[i].Word), r.Sentence)
		if err != nil {
			return nil, errors.Wrapf(err, "tokenize record %s", r.ID)
		}
		if err := enc.validate(); err != nil {
			return nil, errors.Wrapf(err, "record %s", r.ID)
		}

		ex := Example{
			InputIDs:      toInt64(enc.IDs),
			AttentionMask: toInt64(enc.AttentionMask),
			TokenTypeIDs:  toInt64(enc.TypeIDs),
			E1Mask:        EntityMask(enc, r.Sentence, pre.Subjects[i]),
			E2Mask:        EntityMask(enc, r.Sentence, pre.Objects[i]),
		}
		if pre.Labels != nil {
			ex.Label = pre.Labels[i]
			ex.HasLabel = true
		}
		out[i] = ex
	}
	return out, nil
}

// EntityMask marks the sentence tokens whose span overlaps the entity. The
// mask is all zero when the entity cannot be located or was truncated away.
func EntityMask(enc Encoding, sentence string, e Entity) []int64 {
	mask := make([]int64, enc.Len())
	start, end, ok := entitySpan(sentence, e)
	if !ok {
		return mask
	}
	for j, off := range enc.Offsets {
		if enc.SequenceIDs[j] != 1 {
			continue
		}
		if off[0] < end && off[1] > start {
			mask[j] = 1
		}
	}
	return mask
}

func toInt64(xs []int) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}
