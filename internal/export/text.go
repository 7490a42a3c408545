package export

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the text form of date/time cells.
const TimeLayout = "2006-01-02 15:04:05"

var cellReplacer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// Sanitize replaces tab, LF and CR with a single space each so a value can
// never break the record structure of a delimited file.
func Sanitize(s string) string {
	return cellReplacer.Replace(s)
}

// CellText returns the text form of a driver value.
// NULL is the empty string, bytea is \x-prefixed hex and uuid columns
// ([16]byte from pgx) use the canonical dashed form.
func CellText(v any) string {
	return cellText(v, 0)
}

func cellText(v any, depth int) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return `\x` + hex.EncodeToString(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case time.Time:
		return val.Format(TimeLayout)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	case driver.Valuer:
		// pgtype values (numeric, interval, ...) expose their canonical text through Value.
		if depth > 2 {
			return fmt.Sprint(val)
		}
		dv, err := val.Value()
		if err != nil {
			return fmt.Sprint(val)
		}
		return cellText(dv, depth+1)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
