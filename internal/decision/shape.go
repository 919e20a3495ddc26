package decision

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"dupx-go/internal/dupx"
)

// shape holds the fields of a row that carry structural rules.
type shape struct {
	OriginalFolder  string `validate:"required,startswith=/"`
	OriginalFile    string `validate:"required"`
	DuplicateFolder string `validate:"required,startswith=/"`
	DuplicateFile   string `validate:"required"`
}

func shapeOf(rec dupx.DecisionRecord) shape {
	return shape{
		OriginalFolder:  rec.OriginalFolder,
		OriginalFile:    rec.OriginalFile,
		DuplicateFolder: rec.DuplicateFolder,
		DuplicateFile:   rec.DuplicateFile,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(distinctPaths, shape{})
	return v
}

// distinctPaths rejects rows whose original and duplicate are the same path.
func distinctPaths(sl validator.StructLevel) {
	s := sl.Current().Interface().(shape)
	if filepath.Join(s.OriginalFolder, s.OriginalFile) == filepath.Join(s.DuplicateFolder, s.DuplicateFile) {
		sl.ReportError(s.DuplicateFile, "DuplicateFile", "DuplicateFile", "distinctpath", "")
	}
}

// describe turns validator errors into a single readable reason.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is empty")
		case "startswith":
			parts = append(parts, fe.Field()+" is not an absolute path")
		case "distinctpath":
			parts = append(parts, "original and duplicate are the same path")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// parseSize reads a byte count leniently, accepting thousands separators and
// a fractional part. Unparseable sizes are 0; the raw text stays on the record.
func parseSize(s string) int64 {
	s = strings.NewReplacer(",", "", "_", "", " ", "").Replace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return int64(f)
	}
	return 0
}
