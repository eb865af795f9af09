package datasets

import (
	"os"
	"path/filepath"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// TokenizerFile is the file looked up when LoadPretrained is given a
// directory.
const TokenizerFile = "tokenizer.json"

// Pretrained adapts a HuggingFace tokenizer.json to the Tokenizer interface.
type Pretrained struct {
	tk        *tokenizer.Tokenizer
	maxLength int
}

// LoadPretrained loads the tokenizer stored at path (a tokenizer.json file or
// a checkpoint directory holding one) with longest-first truncation at
// maxLength tokens.
func LoadPretrained(path string, maxLength int) (*Pretrained, error) {
	if maxLength < 1 {
		return nil, errors.Errorf("max length must be positive, got %d", maxLength)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat tokenizer %s", path)
	}
	if info.IsDir() {
		path = filepath.Join(path, TokenizerFile)
	}

	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load tokenizer %s", path)
	}
	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: maxLength,
		Strategy:  tokenizer.LongestFirst,
		Stride:    0,
	})
	return &Pretrained{tk: tk, maxLength: maxLength}, nil
}

// MaxLength returns the truncation limit.
func (p *Pretrained) MaxLength() int { return p.maxLength }

// EncodePair implements Tokenizer.
func (p *Pretrained) EncodePair(a, b string) (Encoding, error) {
	enc, err := p.tk.EncodePair(a, b, true)
	if err != nil {
		return Encoding{}, err
	}

	n := len(enc.Ids)
	out := Encoding{
		IDs:           append([]int(nil), enc.Ids...),
		TypeIDs:       make([]int, n),
		AttentionMask: make([]int, n),
		SequenceIDs:   sequenceIDs(enc.SpecialTokenMask, enc.TypeIds, n),
		Offsets:       make([][2]int, n),
	}
	copy(out.TypeIDs, enc.TypeIds)
	copy(out.AttentionMask, enc.AttentionMask)
	for i := 0; i < n && i < len(enc.Offsets); i++ {
		if len(enc.Offsets[i]) == 2 {
			out.Offsets[i] = [2]int{enc.Offsets[i][0], enc.Offsets[i][1]}
		}
	}
	fixOffsetEnds(out.Offsets, out.SequenceIDs, [2]string{a, b})
	return out, nil
}

// fixOffsetEnds rebuilds token end offsets. The tokenizer reports correct
// byte starts but short ends on multibyte text, so a token is taken to run
// from its start to the next token of its segment or the end of its word,
// whichever comes first, and never ends before the reported end.
func fixOffsetEnds(offsets [][2]int, seq []int, segments [2]string) {
	for i := range offsets {
		s := seq[i]
		if s != 0 && s != 1 {
			continue
		}
		text := segments[s]
		start := offsets[i][0]
		if start < 0 || start >= len(text) {
			continue
		}

		end := start
		for end < len(text) {
			r, size := utf8.DecodeRuneInString(text[end:])
			if unicode.IsSpace(r) {
				break
			}
			end += size
		}
		for j := i + 1; j < len(offsets); j++ {
			if seq[j] != s {
				continue
			}
			if next := offsets[j][0]; next > start && next < end {
				end = next
			}
			break
		}
		if reported := offsets[i][1]; reported > end && reported <= len(text) {
			end = reported
		}
		offsets[i][1] = end
	}
}

// sequenceIDs assigns every token to its segment. Models with segment
// embeddings carry the answer in typeIDs. RoBERTa-style models emit all-zero
// type ids, so the second segment is taken as the last run of regular tokens.
func sequenceIDs(special, typeIDs []int, n int) []int {
	seq := make([]int, n)
	isSpecial := func(i int) bool { return i < len(special) && special[i] == 1 }

	hasSecond := false
	for i := 0; i < n && i < len(typeIDs); i++ {
		if typeIDs[i] == 1 {
			hasSecond = true
			break
		}
	}

	if hasSecond {
		for i := 0; i < n; i++ {
			switch {
			case isSpecial(i):
				seq[i] = -1
			case i < len(typeIDs):
				seq[i] = typeIDs[i]
			}
		}
		return seq
	}

	last := n - 1
	for last >= 0 && isSpecial(last) {
		seq[last] = -1
		last--
	}
	i := last
	for ; i >= 0 && !isSpecial(i); i-- {
		seq[i] = 1
	}
	for ; i >= 0; i-- {
		if isSpecial(i) {
			seq[i] = -1
		}
	}
	return seq
}
