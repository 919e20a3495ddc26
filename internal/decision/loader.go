package decision

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"dupx-go/internal/dupx"
)

const (
	// headerRows are the summary and column-title rows written by the spreadsheet.
	headerRows = 2
	// minColumns covers every column up to and including Action.
	minColumns = 10
	sniffBytes = 4096
)

// Column positions. Column 0 is unused.
const (
	colOriginalFolder = iota + 1
	colOriginalFile
	colDuplicateFolder
	colDuplicateFile
	colSize
	colHash
	colKeepOriginal
	colKeepDuplicate
	colAction
	colNotes
)

var delimiterCandidates = []rune{',', ';', '\t'}

// Loader turns a decision table into DecisionRecords.
type Loader struct {
	delimiter rune // 0 means sniff from the input
	validate  *validator.Validate
}

// NewLoader creates a Loader. delimiter is a single character, "tab", or
// empty / "auto" to detect it from the first few kilobytes of input.
func NewLoader(delimiter string) (*Loader, error) {
	d, err := parseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}
	return &Loader{delimiter: d, validate: newValidator()}, nil
}

// LoadFile checks that path is a readable file and returns a sequence over
// its records. Each iteration re-opens the file.
func (l *Loader) LoadFile(path string) (iter.Seq2[dupx.DecisionRecord, error], error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("decision table: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("decision table %s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decision table: %w", err)
	}
	f.Close()

	return l.Records(func() (io.ReadCloser, error) { return os.Open(path) }), nil
}

// Records returns a lazy sequence of records read from the source returned
// by open. Rows 1 and 2 are never data. A row that cannot be parsed yields a
// *dupx.ParseError and iteration continues; any other error ends the sequence.
func (l *Loader) Records(open func() (io.ReadCloser, error)) iter.Seq2[dupx.DecisionRecord, error] {
	return func(yield func(dupx.DecisionRecord, error) bool) {
		rc, err := open()
		if err != nil {
			yield(dupx.DecisionRecord{}, fmt.Errorf("opening decision table: %w", err))
			return
		}
		defer rc.Close()

		br := bufio.NewReaderSize(rc, sniffBytes)
		delim := l.delimiter
		if delim == 0 {
			sample, _ := br.Peek(sniffBytes)
			delim = sniffDelimiter(sample)
		}

		r := csv.NewReader(br)
		r.Comma = delim
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		// TrimLeadingSpace would swallow empty fields of a tab-separated table.
		r.TrimLeadingSpace = !unicode.IsSpace(delim)

		for row := 1; ; row++ {
			fields, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if row <= headerRows {
				continue
			}
			if err != nil {
				var csvErr *csv.ParseError
				if !errors.As(err, &csvErr) {
					yield(dupx.DecisionRecord{}, fmt.Errorf("reading decision table: %w", err))
					return
				}
				if !yield(dupx.DecisionRecord{}, &dupx.ParseError{Row: row, Reason: "malformed row", Err: err}) {
					return
				}
				continue
			}

			rec, err := l.parseRow(row, fields)
			if !yield(rec, err) {
				return
			}
		}
	}
}

func (l *Loader) parseRow(row int, fields []string) (dupx.DecisionRecord, error) {
	if len(fields) < minColumns {
		return dupx.DecisionRecord{}, &dupx.ParseError{
			Row:    row,
			Reason: fmt.Sprintf("expected at least %d columns, got %d", minColumns, len(fields)),
		}
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	rec := dupx.DecisionRecord{
		Row:             row,
		OriginalFolder:  fields[colOriginalFolder],
		OriginalFile:    fields[colOriginalFile],
		DuplicateFolder: fields[colDuplicateFolder],
		DuplicateFile:   fields[colDuplicateFile],
		SizeText:        fields[colSize],
		Size:            parseSize(fields[colSize]),
		ContentHash:     fields[colHash],
		KeepOriginal:    fields[colKeepOriginal],
		KeepDuplicate:   fields[colKeepDuplicate],
		Action:          fields[colAction],
	}
	if len(fields) > colNotes {
		rec.Notes = fields[colNotes]
	}

	if err := l.validate.Struct(shapeOf(rec)); err != nil {
		return dupx.DecisionRecord{}, &dupx.ParseError{Row: row, Reason: describe(err)}
	}
	return rec, nil
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "", "auto":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	runes := []rune(s)
	if len(runes) != 1 || runes[0] == '"' || runes[0] == '\n' || runes[0] == '\r' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return runes[0], nil
}

// sniffDelimiter picks the candidate that occurs most often in sample.
// Ties go to the earlier candidate; no occurrences fall back to a comma.
func sniffDelimiter(sample []byte) rune {
	text := string(sample)
	best, bestCount := ',', 0
	for _, c := range delimiterCandidates {
		if n := strings.Count(text, string(c)); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}
