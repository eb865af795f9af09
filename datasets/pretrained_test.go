package datasets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordPieceJSON is a minimal BERT-style tokenizer.json with a Korean vocab.
const wordPieceJSON = `{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [
    {"id": 0, "content": "[PAD]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 1, "content": "[UNK]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 2, "content": "[CLS]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 3, "content": "[SEP]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true}
  ],
  "normalizer": {"type": "BertNormalizer", "clean_text": true, "handle_chinese_chars": true, "strip_accents": false, "lowercase": false},
  "pre_tokenizer": {"type": "BertPreTokenizer"},
  "post_processor": {"type": "BertProcessing", "sep": ["[SEP]", 3], "cls": ["[CLS]", 2]},
  "decoder": {"type": "WordPiece", "prefix": "##", "cleanup": true},
  "model": {
    "type": "WordPiece",
    "unk_token": "[UNK]",
    "continuing_subword_prefix": "##",
    "max_input_chars_per_word": 100,
    "vocab": {"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3, "가나": 4, "다라": 5, "비틀즈": 6, "[": 7, "SEP": 8, "]": 9}
  }
}`

func writeTokenizer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TokenizerFile), []byte(wordPieceJSON), 0644))
	return dir
}

func TestLoadPretrained_KoreanOffsets(t *testing.T) {
	tok, err := LoadPretrained(writeTokenizer(t), 32)
	require.NoError(t, err)
	assert.Equal(t, 32, tok.MaxLength())

	sentence := "가나 다라 비틀즈"
	enc, err := tok.EncodePair(PairText("가나", "비틀즈"), sentence)
	require.NoError(t, err)
	require.NoError(t, enc.validate())

	var ids []int
	var offsets [][2]int
	for i, s := range enc.SequenceIDs {
		if s == 1 {
			ids = append(ids, enc.IDs[i])
			offsets = append(offsets, enc.Offsets[i])
		}
	}
	assert.Equal(t, []int{4, 5, 6}, ids)
	assert.Equal(t, [][2]int{{0, 6}, {7, 13}, {14, 23}}, offsets)

	// 나 is the second character of the first token
	start, end := 1, 1
	mask := EntityMask(enc, sentence, Entity{Word: "나", Type: "PER", StartIdx: &start, EndIdx: &end})
	var marked []int
	for i, m := range mask {
		if m == 1 {
			marked = append(marked, enc.IDs[i])
		}
	}
	assert.Equal(t, []int{4}, marked)

	mask = EntityMask(enc, sentence, Entity{Word: "비틀즈", Type: "ORG"})
	marked = marked[:0]
	for i, m := range mask {
		if m == 1 {
			marked = append(marked, enc.IDs[i])
		}
	}
	assert.Equal(t, []int{6}, marked)
}

func TestLoadPretrained_Errors(t *testing.T) {
	_, err := LoadPretrained(writeTokenizer(t), 0)
	assert.Error(t, err)

	_, err = LoadPretrained(filepath.Join(t.TempDir(), "missing"), 16)
	assert.Error(t, err)
}

func TestFixOffsetEnds(t *testing.T) {
	seq := []int{-1, 0, -1, 1, 1, 1, -1}

	t.Run("short multibyte ends", func(t *testing.T) {
		offsets := [][2]int{{0, 0}, {0, 3}, {0, 0}, {0, 3}, {7, 10}, {14, 17}, {0, 0}}
		fixOffsetEnds(offsets, seq, [2]string{"가나", "가나 다라 비틀즈"})
		assert.Equal(t, [][2]int{{0, 0}, {0, 6}, {0, 0}, {0, 6}, {7, 13}, {14, 23}, {0, 0}}, offsets)
	})

	t.Run("subwords stop at the next token", func(t *testing.T) {
		offsets := [][2]int{{0, 0}, {0, 3}, {0, 0}, {0, 3}, {7, 10}, {13, 14}, {0, 0}}
		fixOffsetEnds(offsets, seq, [2]string{"가나", "가나 비틀즈"})
		assert.Equal(t, [][2]int{{0, 0}, {0, 6}, {0, 0}, {0, 6}, {7, 13}, {13, 16}, {0, 0}}, offsets)
	})

	t.Run("ascii untouched", func(t *testing.T) {
		offsets := [][2]int{{0, 0}, {0, 4}, {0, 0}, {0, 4}, {5, 9}, {9, 10}, {0, 0}}
		fixOffsetEnds(offsets, seq, [2]string{"Acme", "Acme Corp."})
		assert.Equal(t, [][2]int{{0, 0}, {0, 4}, {0, 0}, {0, 4}, {5, 9}, {9, 10}, {0, 0}}, offsets)
	})
}
