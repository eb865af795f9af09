package datasets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preprocessFixture(t *testing.T) (*DataHelper, *Preprocessed) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.csv")
	writeCSV(t, path, fixtureHeader, fixtureRows())
	h, err := NewDataHelper(path)
	require.NoError(t, err)
	pre, err := h.Preprocess(ModeInference, nil)
	require.NoError(t, err)
	return h, pre
}

func TestTokenize_EntityMasks(t *testing.T) {
	h, pre := preprocessFixture(t)

	examples, err := h.Tokenize(pre, newWhitespaceTokenizer(64))
	require.NoError(t, err)
	require.Len(t, examples, 3)

	// [CLS] Acme Corp[SEP]Bob Smith [SEP] Acme Corp hired Bob Smith in 2020. [SEP]
	ex := examples[0]
	require.Equal(t, 13, ex.Len())
	assert.Equal(t, []int64{0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0}, ex.E1Mask)
	assert.Equal(t, []int64{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0}, ex.E2Mask)
	assert.Equal(t, int64(clsToken), ex.InputIDs[0])
	assert.False(t, ex.HasLabel)

	for _, ex := range examples {
		assert.Len(t, ex.AttentionMask, ex.Len())
		assert.Len(t, ex.TokenTypeIDs, ex.Len())
		assert.Len(t, ex.E1Mask, ex.Len())
		assert.Len(t, ex.E2Mask, ex.Len())
	}
}

func TestTokenize_TruncationDropsEntity(t *testing.T) {
	h, pre := preprocessFixture(t)

	examples, err := h.Tokenize(pre, newWhitespaceTokenizer(8))
	require.NoError(t, err)

	ex := examples[0]
	require.Equal(t, 8, ex.Len())
	assert.Equal(t, []int64{0, 0, 0, 0, 0, 1, 1, 0}, ex.E1Mask)
	assert.Equal(t, make([]int64, 8), ex.E2Mask, "object was truncated away")
}

func TestTokenize_Labels(t *testing.T) {
	_, pre := preprocessFixture(t)
	pre.Labels = []int{2, 1, 0}

	examples, err := Tokenize(pre, newWhitespaceTokenizer(64))
	require.NoError(t, err)
	for i, ex := range examples {
		assert.True(t, ex.HasLabel)
		assert.Equal(t, pre.Labels[i], ex.Label)
		assert.Equal(t, pre.Labels[i], ex.Fields()["labels"])
	}
}

func TestCharSpanToBytes(t *testing.T) {
	s := "한국 Acme"
	start, end, ok := charSpanToBytes(s, 3, 6)
	require.True(t, ok)
	assert.Equal(t, "Acme", s[start:end])

	start, end, ok = charSpanToBytes(s, 0, 1)
	require.True(t, ok)
	assert.Equal(t, "한국", s[start:end])

	_, _, ok = charSpanToBytes(s, 5, 7)
	assert.False(t, ok)
}

func TestSequenceIDs(t *testing.T) {
	// RoBERTa layout: <s> a a </s> </s> b b b </s>, all type ids zero
	special := []int{1, 0, 0, 1, 1, 0, 0, 0, 1}
	got := sequenceIDs(special, make([]int, 9), 9)
	assert.Equal(t, []int{-1, 0, 0, -1, -1, 1, 1, 1, -1}, got)

	// BERT layout: [CLS] a [SEP] b b [SEP]
	special = []int{1, 0, 1, 0, 0, 1}
	types := []int{0, 0, 0, 1, 1, 1}
	got = sequenceIDs(special, types, 6)
	assert.Equal(t, []int{-1, 0, -1, 1, 1, -1}, got)
}
