//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of SalesETL.
//
// SalesETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SalesETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SalesETL. If not, see https://www.gnu.org/licenses/.

package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Kind identifies the dynamic type held by a Value.
type Kind uint8

const (
	// KindNull marks a missing value.
	KindNull Kind = iota
	// KindString holds untyped text as read from a source or flat file.
	KindString
	// KindDecimal holds an arbitrary-precision decimal number.
	KindDecimal
	// KindDate holds a calendar date, optionally with a clock part.
	KindDate
	// KindTime holds a time of day.
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Canonical text layouts for temporal values.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
	ClockLayout    = "15:04:05"
)

// Value is the nullable value representation shared by every stage.
// The zero Value is null. Values are immutable once constructed.
type Value struct {
	kind Kind
	str  string
	dec  *apd.Decimal
	t    time.Time
}

// Null returns the null Value.
func Null() Value { return Value{} }

// StringValue wraps raw text.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// DecimalValue wraps d. A nil d yields null. The caller must not mutate d afterwards.
func DecimalValue(d *apd.Decimal) Value {
	if d == nil {
		return Null()
	}
	return Value{kind: KindDecimal, dec: d}
}

// DateValue wraps a calendar date (with optional clock part).
func DateValue(t time.Time) Value { return Value{kind: KindDate, t: t} }

// TimeValue wraps a time of day. Only the clock part of t is kept.
func TimeValue(t time.Time) Value {
	return Value{kind: KindTime, t: time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Decimal returns the wrapped decimal, or nil when v is not a decimal.
func (v Value) Decimal() *apd.Decimal {
	if v.kind != KindDecimal {
		return nil
	}
	return v.dec
}

// Time returns the wrapped time for date and time values.
func (v Value) Time() time.Time { return v.t }

// String returns the canonical text form. Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindDecimal:
		return v.dec.Text('f')
	case KindDate:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 && v.t.Nanosecond() == 0 {
			return v.t.Format(DateLayout)
		}
		return v.t.Format(DateTimeLayout)
	case KindTime:
		return v.t.Format(ClockLayout)
	default:
		return ""
	}
}

// Key returns an equality key. Two values with equal keys are considered the
// same value for deduplication and mode counting. Decimals compare numerically.
func (v Value) Key() string {
	switch v.kind {
	case KindNull:
		return "\x00"
	case KindDecimal:
		var reduced apd.Decimal
		reduced.Reduce(v.dec)
		return "decimal:" + reduced.Text('f')
	default:
		return v.kind.String() + ":" + v.String()
	}
}

// Equal reports whether v and other hold the same value.
func (v Value) Equal(other Value) bool { return v.Key() == other.Key() }

// MarshalJSON renders nulls as null, decimals as JSON numbers and everything
// else as JSON strings in canonical form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindDecimal:
		return []byte(v.dec.Text('f')), nil
	default:
		return json.Marshal(v.String())
	}
}

// UnmarshalJSON is the inverse of MarshalJSON. Strings stay untyped.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	}
	d, ok := ParseDecimal(string(data))
	if !ok {
		return fmt.Errorf("core: cannot decode %s as value", data)
	}
	*v = DecimalValue(d)
	return nil
}

// ParseDecimal parses s as a finite decimal number. Surrounding whitespace is
// ignored; NaN, infinities and anything else unparseable report false.
func ParseDecimal(s string) (*apd.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	d, _, err := apd.NewFromString(s)
	if err != nil || d.Form != apd.Finite {
		return nil, false
	}
	return d, true
}

// DateLayouts are the layouts accepted when parsing calendar dates.
var DateLayouts = []string{
	DateLayout,
	"1/2/2006",
	"2006/01/02",
	DateTimeLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"02-Jan-2006",
	"Jan 2, 2006",
}

// ParseDate parses s against DateLayouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseClock parses s as a time of day against the given layouts, in order.
func ParseClock(s string, layouts ...string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DecimalFromInt64 builds a decimal Value from an integer.
func DecimalFromInt64(i int64) Value {
	return DecimalValue(apd.New(i, 0))
}

// DecimalFromFloat64 builds a decimal Value from a float using its shortest
// round-tripping representation.
func DecimalFromFloat64(f float64) Value {
	d, ok := ParseDecimal(strconv.FormatFloat(f, 'f', -1, 64))
	if !ok {
		return Null()
	}
	return DecimalValue(d)
}
