package repository

import (
	"fmt"
	"strconv"
	"strings"

	"pp-tracker/internal/domain"
)

// EncodeSequence joins values with single spaces using the shortest decimal
// form that parses back to the same float64.
func EncodeSequence(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return sb.String()
}

// DecodeSequence is the inverse of EncodeSequence. Blank text decodes to an
// empty sequence.
func DecodeSequence(text string) ([]float64, error) {
	fields := strings.Fields(text)
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: token %d %q", domain.ErrFormat, i, f)
		}
		values[i] = v
	}
	return values, nil
}
