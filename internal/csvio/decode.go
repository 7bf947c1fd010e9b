package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Codecs are tried in order against every input file. utf-8-sig accepts
// plain UTF-8 too (the BOM is optional on decode), so the bare utf-8
// attempt only matters when the first attempt died on a parse error.
var codecs = []struct {
	name string
	enc  encoding.Encoding
}{
	{name: "utf-8-sig", enc: unicode.UTF8BOM},
	{name: "cp932", enc: japanese.ShiftJIS},
	{name: "utf-8", enc: unicode.UTF8},
}

type Tracer interface {
	Logf(format string, args ...any)
}

type DecodeError struct {
	File     string
	Attempts []string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: unable to decode with any supported encoding: %s", e.File, strings.Join(e.Attempts, "; "))
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type SchemaError struct {
	File    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.File, strings.Join(e.Missing, ", "))
}

// Decode interprets raw bytes as a CSV table. Each codec is decoded from
// the start of the byte stream; the first one that both decodes cleanly
// and parses as CSV wins. One trace line per attempt.
func Decode(data []byte, filename string, trace Tracer) (*Table, error) {
	attempts := make([]string, 0, len(codecs))
	var lastErr error
	for _, c := range codecs {
		text, err := decodeText(c.enc, data)
		if err == nil {
			var t *Table
			t, err = parseCSV(text, filename)
			if err == nil {
				tracef(trace, "    - 「%s」を %s で読み込み成功。", filename, c.name)
				return t, nil
			}
		}
		lastErr = err
		attempts = append(attempts, fmt.Sprintf("%s: %v", c.name, err))
		tracef(trace, "    - 「%s」: %s での読み込み失敗。", filename, c.name)
	}
	return nil, &DecodeError{File: filename, Attempts: attempts, Err: lastErr}
}

// Ingest is Decode plus the required-column check.
func Ingest(data []byte, filename string, required []string, trace Tracer) (*Table, error) {
	t, err := Decode(data, filename, trace)
	if err != nil {
		return nil, err
	}
	if err := t.Require(required...); err != nil {
		return nil, err
	}
	return t, nil
}

// decodeText runs one strict decode attempt. The x/text decoders swap
// invalid byte sequences for U+FFFD instead of failing, so the output is
// scanned for the replacement rune to recover strictness.
func decodeText(enc encoding.Encoding, data []byte) (string, error) {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", err
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("invalid byte sequence for this encoding")
	}
	return string(out), nil
}

func parseCSV(text, filename string) (*Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row")
	}

	headers := records[0]
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(headers))
		copy(row, rec)
		rows = append(rows, row)
	}
	return &Table{Name: filename, Headers: headers, Rows: rows}, nil
}

func tracef(trace Tracer, format string, args ...any) {
	if trace == nil {
		return
	}
	trace.Logf(format, args...)
}
