package export

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a b c d", Sanitize("a\tb\nc\rd"))
	assert.Equal(t, "a  b", Sanitize("a\r\nb"))
	assert.Equal(t, "plain", Sanitize("plain"))
}

func TestCellText(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	numeric := pgtype.Numeric{}
	_ = numeric.Scan("12.50")

	tests := []struct {
		name string
		v    any
		want string
	}{
		{name: "nil", v: nil, want: ""},
		{name: "string", v: "x", want: "x"},
		{name: "int64", v: int64(-3), want: "-3"},
		{name: "float", v: 1.25, want: "1.25"},
		{name: "bool", v: true, want: "true"},
		{name: "time", v: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), want: "2024-01-02 03:04:05"},
		{name: "uuid array", v: [16]byte(id), want: id.String()},
		{name: "16-byte bytea", v: id[:], want: `\x6ba7b8109dad11d180b400c04fd430c8`},
		{name: "bytes", v: []byte{0xde, 0xad}, want: `\xdead`},
		{name: "json object", v: map[string]any{"k": "v"}, want: `{"k":"v"}`},
		{name: "numeric", v: numeric, want: "12.50"},
		{name: "null numeric", v: pgtype.Numeric{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CellText(tt.v))
		})
	}
}
