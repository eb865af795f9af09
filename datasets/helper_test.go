package datasets

import (
	"encoding/csv"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeCSV writes a header and rows, quoting fields as needed.
func writeCSV(t *testing.T, path string, header []string, rows [][]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	require.NoError(t, w.WriteAll(rows))
	w.Flush()
	require.NoError(t, w.Error())
}

var fixtureHeader = []string{"id", "sentence", "subject_entity", "object_entity", "label"}

func fixtureRows() [][]string {
	return [][]string{
		{"0", "Acme Corp hired Bob Smith in 2020.",
			"{'word': 'Acme Corp', 'type': 'ORG', 'start_idx': 0, 'end_idx': 8}",
			"{'word': 'Bob Smith', 'type': 'PER'}",
			"org:top_members/employees"},
		{"1", "Globex was founded by Hank Scorpio.",
			"{'word': 'Globex', 'type': 'ORG'}",
			"{'word': 'Hank Scorpio', 'type': 'PER'}",
			"org:founded_by"},
		{"2", "The weather in Springfield was mild.",
			"{'word': 'Springfield', 'type': 'LOC'}",
			"{'word': 'weather', 'type': 'POH'}",
			"no_relation"},
	}
}

const (
	padToken = 0
	clsToken = 1
	sepToken = 2
)

// whitespaceTokenizer is a BERT-shaped test double: [CLS] a [SEP] b [SEP],
// one token per whitespace separated word, truncating b first.
type whitespaceTokenizer struct {
	maxLength int
	vocab     map[string]int
}

func newWhitespaceTokenizer(maxLength int) *whitespaceTokenizer {
	return &whitespaceTokenizer{maxLength: maxLength, vocab: map[string]int{}}
}

type span struct {
	word       string
	start, end int
}

func splitWords(s string) []span {
	var out []span
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				out = append(out, span{s[start:i], start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, span{s[start:], start, len(s)})
	}
	return out
}

func (w *whitespaceTokenizer) id(word string) int {
	word = strings.ToLower(word)
	if id, ok := w.vocab[word]; ok {
		return id
	}
	id := len(w.vocab) + 5
	w.vocab[word] = id
	return id
}

func (w *whitespaceTokenizer) EncodePair(a, b string) (Encoding, error) {
	wa, wb := splitWords(a), splitWords(b)
	for len(wa)+len(wb)+3 > w.maxLength && len(wb) > 0 {
		wb = wb[:len(wb)-1]
	}
	for len(wa)+len(wb)+3 > w.maxLength && len(wa) > 0 {
		wa = wa[:len(wa)-1]
	}

	var enc Encoding
	push := func(id, typ, seq int, off [2]int) {
		enc.IDs = append(enc.IDs, id)
		enc.TypeIDs = append(enc.TypeIDs, typ)
		enc.AttentionMask = append(enc.AttentionMask, 1)
		enc.SequenceIDs = append(enc.SequenceIDs, seq)
		enc.Offsets = append(enc.Offsets, off)
	}
	push(clsToken, 0, -1, [2]int{})
	for _, s := range wa {
		push(w.id(s.word), 0, 0, [2]int{s.start, s.end})
	}
	push(sepToken, 0, -1, [2]int{})
	for _, s := range wb {
		push(w.id(s.word), 1, 1, [2]int{s.start, s.end})
	}
	push(sepToken, 1, -1, [2]int{})
	return enc, nil
}
