package datasets

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// readHeader returns the trimmed column names of the first CSV row.
func readHeader(data []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty table")
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	// strip a UTF-8 BOM left by spreadsheet exports
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header, nil
}

func requireColumns(header, required []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, r := range required {
		if !present[r] {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// charSpanToBytes converts an inclusive character span [start, end] of s into
// a half-open byte span. ok is false when the span does not fit in s.
func charSpanToBytes(s string, start, end int) (bStart, bEnd int, ok bool) {
	if start < 0 || end < start || end >= utf8.RuneCountInString(s) {
		return 0, 0, false
	}
	bStart, bEnd = -1, -1
	char := 0
	for i, r := range s {
		if char == start {
			bStart = i
		}
		if char == end {
			bEnd = i + utf8.RuneLen(r)
			break
		}
		char++
	}
	return bStart, bEnd, bStart >= 0 && bEnd >= 0
}

// entitySpan locates e inside sentence as a half-open byte span. Explicit
// character offsets win; otherwise the first occurrence of the word is used.
func entitySpan(sentence string, e Entity) (int, int, bool) {
	if e.StartIdx != nil && e.EndIdx != nil {
		if s, t, ok := charSpanToBytes(sentence, *e.StartIdx, *e.EndIdx); ok {
			return s, t, true
		}
	}
	if e.Word == "" {
		return 0, 0, false
	}
	i := strings.Index(sentence, e.Word)
	if i < 0 {
		return 0, 0, false
	}
	return i, i + len(e.Word), true
}
