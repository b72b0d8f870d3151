// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package fhir

import (
	"fmt"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	mapset "github.com/deckarep/golang-set/v2"
)

// Token is a coded value such as an identifier or a coding.
type Token struct {
	Param  string
	System string
	Code   string
}

// StringValue is a human-readable text value and its normalized form.
type StringValue struct {
	Param      string
	Text       string
	Normalized string
}

// DateRange is the closed interval a partial date or period covers.
type DateRange struct {
	Param string
	Start time.Time
	End   time.Time
}

// Reference points at another resource by type and logical id.
type Reference struct {
	Param      string
	TargetType string
	TargetID   string
}

// Compartment assigns the resource to a compartment owner.
type Compartment struct {
	Type string
	ID   string
}

// SearchValues is everything the index tables need from one resource.
type SearchValues struct {
	Tokens       []Token
	Strings      []StringValue
	Dates        []DateRange
	References   []Reference
	Compartments []Compartment
}

// Extract walks the well-known search paths of res. Unknown or absent
// paths are ignored; a present but malformed date is an error.
func Extract(res *Resource) (*SearchValues, error) {
	x := &extractor{
		data:  res.Raw,
		out:   &SearchValues{},
		seenT: mapset.NewThreadUnsafeSet[Token](),
		seenS: mapset.NewThreadUnsafeSet[StringValue](),
		seenR: mapset.NewThreadUnsafeSet[Reference](),
		seenC: mapset.NewThreadUnsafeSet[Compartment](),
	}

	x.tokens()
	x.stringValues()
	if err := x.dates(); err != nil {
		return nil, err
	}
	x.references()
	x.compartments(res)
	return x.out, nil
}

type extractor struct {
	data  []byte
	out   *SearchValues
	seenT mapset.Set[Token]
	seenS mapset.Set[StringValue]
	seenR mapset.Set[Reference]
	seenC mapset.Set[Compartment]
}

func (x *extractor) addToken(t Token) {
	if t.Code == "" {
		return
	}
	if x.seenT.Add(t) {
		x.out.Tokens = append(x.out.Tokens, t)
	}
}

func (x *extractor) addString(param, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	v := StringValue{Param: param, Text: text, Normalized: NormalizeString(text)}
	if x.seenS.Add(v) {
		x.out.Strings = append(x.out.Strings, v)
	}
}

func (x *extractor) addReference(param, ref string) {
	typ, id, ok := SplitReference(ref)
	if !ok {
		return
	}
	r := Reference{Param: param, TargetType: typ, TargetID: id}
	if x.seenR.Add(r) {
		x.out.References = append(x.out.References, r)
	}
}

func (x *extractor) tokens() {
	arrayEach(x.data, func(v []byte) {
		system, _ := jsonparser.GetString(v, "system")
		value, _ := jsonparser.GetString(v, "value")
		x.addToken(Token{Param: "identifier", System: system, Code: value})
	}, "identifier")

	codings := func(param string, keys ...string) {
		arrayEach(x.data, func(v []byte) {
			system, _ := jsonparser.GetString(v, "system")
			code, _ := jsonparser.GetString(v, "code")
			x.addToken(Token{Param: param, System: system, Code: code})
		}, keys...)
	}
	codings("code", "code", "coding")
	arrayEach(x.data, func(v []byte) {
		arrayEach(v, func(c []byte) {
			system, _ := jsonparser.GetString(c, "system")
			code, _ := jsonparser.GetString(c, "code")
			x.addToken(Token{Param: "category", System: system, Code: code})
		}, "coding")
	}, "category")

	for _, param := range []string{"status", "gender"} {
		if v, err := jsonparser.GetString(x.data, param); err == nil {
			x.addToken(Token{Param: param, Code: v})
		}
	}
}

func (x *extractor) stringValues() {
	arrayEach(x.data, func(v []byte) {
		var parts []string
		if family, err := jsonparser.GetString(v, "family"); err == nil {
			x.addString("family", family)
			parts = append(parts, family)
		}
		arrayEach(v, func(g []byte) {
			given, err := jsonparser.ParseString(g)
			if err != nil {
				return
			}
			x.addString("given", given)
			parts = append(parts, given)
		}, "given")
		if text, err := jsonparser.GetString(v, "text"); err == nil {
			x.addString("name", text)
		} else if len(parts) > 0 {
			x.addString("name", strings.Join(parts, " "))
		}
	}, "name")

	arrayEach(x.data, func(v []byte) {
		for _, key := range []string{"city", "state", "postalCode", "country"} {
			if s, err := jsonparser.GetString(v, key); err == nil {
				x.addString("address-"+strings.ToLower(key), s)
			}
		}
	}, "address")

	if text, err := jsonparser.GetString(x.data, "code", "text"); err == nil {
		x.addString("code-text", text)
	}
}

func (x *extractor) dates() error {
	single := []struct{ param, key string }{
		{"birthdate", "birthDate"},
		{"date", "effectiveDateTime"},
		{"date", "recordedDate"},
		{"issued", "issued"},
		{"onset", "onsetDateTime"},
	}
	for _, s := range single {
		v, err := jsonparser.GetString(x.data, s.key)
		if err != nil {
			continue
		}
		start, end, err := ParseDateRange(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidResource, s.key, err)
		}
		x.out.Dates = append(x.out.Dates, DateRange{Param: s.param, Start: start, End: end})
	}

	for _, key := range []string{"effectivePeriod", "period"} {
		period, dt, _, err := jsonparser.Get(x.data, key)
		if err != nil || dt != jsonparser.Object {
			continue
		}
		r := DateRange{Param: "date"}
		if v, err := jsonparser.GetString(period, "start"); err == nil {
			start, _, err := ParseDateRange(v)
			if err != nil {
				return fmt.Errorf("%w: %s.start: %v", ErrInvalidResource, key, err)
			}
			r.Start = start
		}
		if v, err := jsonparser.GetString(period, "end"); err == nil {
			_, end, err := ParseDateRange(v)
			if err != nil {
				return fmt.Errorf("%w: %s.end: %v", ErrInvalidResource, key, err)
			}
			r.End = end
		}
		if r.Start.IsZero() && r.End.IsZero() {
			continue
		}
		x.out.Dates = append(x.out.Dates, r)
	}
	return nil
}

func (x *extractor) references() {
	for _, key := range []string{"subject", "patient", "encounter"} {
		if ref, err := jsonparser.GetString(x.data, key, "reference"); err == nil {
			x.addReference(key, ref)
		}
	}
	arrayEach(x.data, func(v []byte) {
		if ref, err := jsonparser.GetString(v, "reference"); err == nil {
			x.addReference("performer", ref)
		}
	}, "performer")
}

func (x *extractor) compartments(res *Resource) {
	add := func(c Compartment) {
		if x.seenC.Add(c) {
			x.out.Compartments = append(x.out.Compartments, c)
		}
	}
	if res.ResourceType == "Patient" {
		add(Compartment{Type: "Patient", ID: res.ID})
	}
	for _, r := range x.out.References {
		if r.TargetType != "Patient" {
			continue
		}
		if r.Param == "subject" || r.Param == "patient" {
			add(Compartment{Type: "Patient", ID: r.TargetID})
		}
	}
}

// SplitReference parses "Type/id", "Type/id/_history/v" and absolute
// URLs ending in either form.
func SplitReference(ref string) (typ, id string, ok bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", "", false
	}
	if i := strings.Index(ref, "/_history/"); i >= 0 {
		ref = ref[:i]
	}
	parts := strings.Split(strings.TrimRight(ref, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	typ, id = parts[len(parts)-2], parts[len(parts)-1]
	if typ == "" || !idPattern.MatchString(id) {
		return "", "", false
	}
	return typ, id, true
}

// ParseDateRange expands a FHIR date or dateTime of any precision to the
// interval it covers, in UTC.
func ParseDateRange(s string) (time.Time, time.Time, error) {
	layouts := []struct {
		layout string
		step   func(time.Time) time.Time
	}{
		{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
		{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
		{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
		{"2006-01-02T15:04Z07:00", func(t time.Time) time.Time { return t.Add(time.Minute) }},
		{"2006-01-02T15:04:05Z07:00", func(t time.Time) time.Time { return t.Add(time.Second) }},
	}
	for _, l := range layouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return t.UTC(), l.step(t).Add(-time.Nanosecond).UTC(), nil
		}
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func arrayEach(data []byte, fn func(v []byte), keys ...string) {
	_, _ = jsonparser.ArrayEach(data, func(v []byte, dt jsonparser.ValueType, _ int, err error) {
		if err != nil || dt != jsonparser.Object && dt != jsonparser.String {
			return
		}
		fn(v)
	}, keys...)
}
