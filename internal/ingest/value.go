package ingest

import (
	"fmt"
	"strconv"
	"time"
)

// fieldKind discriminates the three-state field representation: a column can
// be absent from the file entirely, present but empty/unparsable (null), or
// present with a typed value. Downstream logic distinguishes absent from
// null, e.g. PTP's prior_1996_flag is three-valued.
type fieldKind int

const (
	kindAbsent fieldKind = iota
	kindNull
	kindText
	kindNumber
	kindInteger
	kindDate
	kindBool
)

// Value is one field of a Record.
type Value struct {
	kind fieldKind
	s    string
	f    float64
	i    int64
	t    time.Time
	b    bool
}

// Absent returns the absent value: the column was not present in the file.
func Absent() Value { return Value{kind: kindAbsent} }

// Null returns the null value: present but empty or unparsable.
func Null() Value { return Value{kind: kindNull} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: kindText, s: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: kindNumber, f: f} }

// Integer returns an integer value.
func Integer(i int64) Value { return Value{kind: kindInteger, i: i} }

// Date returns a date value.
func Date(t time.Time) Value { return Value{kind: kindDate, t: t} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: kindBool, b: b} }

// IsAbsent reports whether the column was missing from the file's header.
func (v Value) IsAbsent() bool { return v.kind == kindAbsent }

// IsNull reports whether the column was present but held no usable value.
func (v Value) IsNull() bool { return v.kind == kindNull }

// IsEmpty reports absent-or-null, the two states that cannot identify a row.
func (v Value) IsEmpty() bool { return v.kind == kindAbsent || v.kind == kindNull }

// Arg returns the value as a database driver argument. Absent and null both
// map to NULL at insert time; the distinction only matters before loading.
func (v Value) Arg() any {
	switch v.kind {
	case kindText:
		return v.s
	case kindNumber:
		return v.f
	case kindInteger:
		return v.i
	case kindDate:
		return v.t
	case kindBool:
		return v.b
	default:
		return nil
	}
}

// Int returns the integer value and whether the field holds one.
func (v Value) Int() (int64, bool) {
	if v.kind == kindInteger {
		return v.i, true
	}
	return 0, false
}

// Time returns the date value and whether the field holds one.
func (v Value) Time() (time.Time, bool) {
	if v.kind == kindDate {
		return v.t, true
	}
	return time.Time{}, false
}

// String renders the value for logs and sample statistics.
func (v Value) String() string {
	switch v.kind {
	case kindAbsent:
		return "<absent>"
	case kindNull:
		return "<null>"
	case kindText:
		return v.s
	case kindNumber:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case kindInteger:
		return strconv.FormatInt(v.i, 10)
	case kindDate:
		return v.t.Format("2006-01-02")
	case kindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// keyString renders the value for composite-key comparison. Kind prefixes
// keep "1" (text) and 1 (integer) from colliding.
func (v Value) keyString() string {
	return fmt.Sprintf("%d:%s", v.kind, v.String())
}

// Record maps canonical column names to field values. Columns missing from
// the file's header have no entry at all, which reads as Absent.
type Record map[string]Value

// Get returns the field value, or Absent when the column has no entry.
func (r Record) Get(name string) Value {
	if v, ok := r[name]; ok {
		return v
	}
	return Absent()
}

// RecordRow pairs a transformed record with its 1-based row number in the
// source file, kept for error reporting.
type RecordRow struct {
	Record Record
	Row    int
}
