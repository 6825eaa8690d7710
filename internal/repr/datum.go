package repr

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Datum is a sealed interface for a single SQL value.
// Only Null, Bool, Int, Float, Text and Bytes implement it.
type Datum interface {
	datum()
	String() string
}

// Null is the SQL NULL.
type Null struct{}

func (Null) datum()         {}
func (Null) String() string { return "NULL" }

// Bool is a boolean datum.
type Bool bool

func (Bool) datum() {}
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int is a 64-bit integer datum.
type Int int64

func (Int) datum()           {}
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Float is a double precision datum.
type Float float64

func (Float) datum()           {}
func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// Text is a string datum. It renders quoted so embedded whitespace and
// newlines stay visible in golden output.
type Text string

func (Text) datum()           {}
func (s Text) String() string { return strconv.Quote(string(s)) }

// Bytes is a binary datum.
type Bytes []byte

func (Bytes) datum()           {}
func (b Bytes) String() string { return `\x` + hex.EncodeToString(b) }

// IsTrue reports whether d is the boolean true.
func IsTrue(d Datum) bool {
	b, ok := d.(Bool)
	return ok && bool(b)
}

// FromSQL converts a value scanned by database/sql into a Datum. When
// boolean is set, integer values are read as booleans (SQLite represents the
// result of comparisons as 0/1).
func FromSQL(v any, boolean bool) (Datum, error) {
	switch v := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(v), nil
	case int64:
		if boolean {
			return Bool(v != 0), nil
		}
		return Int(v), nil
	case float64:
		return Float(v), nil
	case string:
		return Text(v), nil
	case []byte:
		if boolean {
			return nil, fmt.Errorf("cannot read bytes as boolean")
		}
		return Bytes(append([]byte(nil), v...)), nil
	case time.Time:
		return Text(v.UTC().Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("unsupported SQL value of type %T", v)
	}
}

// ToSQL converts a Datum into a value accepted as a database/sql argument.
func ToSQL(d Datum) any {
	switch d := d.(type) {
	case Bool:
		return bool(d)
	case Int:
		return int64(d)
	case Float:
		return float64(d)
	case Text:
		return string(d)
	case Bytes:
		return []byte(d)
	default:
		return nil
	}
}

// Row is an ordered list of datums.
type Row []Datum

// String renders the row as space separated datums.
func (r Row) String() string {
	parts := make([]string, len(r))
	for i, d := range r {
		parts[i] = d.String()
	}
	return strings.Join(parts, " ")
}
