package vectorstore

import (
	"strconv"
	"strings"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
)

// formatVector renders a vector in pgvector's input syntax: "[0.1,0.2,...]".
// Elements round-trip exactly through float32.
func formatVector(vector []float32) string {
	var b strings.Builder
	b.Grow(len(vector)*10 + 2)
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector reads pgvector's text output back into a float32 slice.
func parseVector(s string) ([]float32, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.Trim(trimmed, "[]")
	if trimmed == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "empty vector literal")
	}
	parts := strings.Split(trimmed, ",")
	vector := make([]float32, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.KindBadInput, "parse vector element %d", i)
		}
		vector[i] = float32(v)
	}
	return vector, nil
}
