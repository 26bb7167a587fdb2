// Package filter implements the subscription predicate: which events a
// client wants to see, both from history and live.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TagPrefix marks a tag filter key in the JSON form, e.g. "#e".
const TagPrefix = "#"

// Filter is a conjunctive predicate over event fields. A nil field imposes no
// constraint. A non-nil but empty list matches no event.
type Filter struct {
	// IDs holds accepted event id prefixes.
	IDs []string

	// Authors holds accepted pubkey prefixes.
	Authors []string

	// Kinds holds accepted kinds.
	Kinds []int

	// Tags maps a tag name (without the leading '#') to its accepted values.
	Tags map[string][]string

	// Since is the inclusive lower bound on created_at.
	Since *int64

	// Until is the inclusive upper bound on created_at.
	Until *int64

	// Limit caps how many stored events this filter replays. It plays no part
	// in live matching.
	Limit *int
}

// Filters is a filter set. It matches an event when any member does.
type Filters []Filter

// UnmarshalJSON decodes the wire form. Unknown keys are ignored.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("filter: must be an object")
	}

	var out Filter
	for key, value := range raw {
		if string(value) == "null" {
			continue
		}
		var err error
		switch {
		case key == "ids":
			err = json.Unmarshal(value, &out.IDs)
		case key == "authors":
			err = json.Unmarshal(value, &out.Authors)
		case key == "kinds":
			err = json.Unmarshal(value, &out.Kinds)
		case key == "since":
			err = json.Unmarshal(value, &out.Since)
		case key == "until":
			err = json.Unmarshal(value, &out.Until)
		case key == "limit":
			err = json.Unmarshal(value, &out.Limit)
			if err == nil && out.Limit != nil && *out.Limit < 0 {
				err = fmt.Errorf("must not be negative")
			}
		case strings.HasPrefix(key, TagPrefix) && len(key) > len(TagPrefix):
			var values []string
			err = json.Unmarshal(value, &values)
			if err == nil {
				if out.Tags == nil {
					out.Tags = make(map[string][]string)
				}
				out.Tags[strings.TrimPrefix(key, TagPrefix)] = values
			}
		}
		if err != nil {
			return fmt.Errorf("filter: field %q: %w", key, err)
		}
	}

	*f = out
	return nil
}

// MarshalJSON encodes the wire form, emitting only present fields.
func (f Filter) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)
	if f.IDs != nil {
		out["ids"] = f.IDs
	}
	if f.Authors != nil {
		out["authors"] = f.Authors
	}
	if f.Kinds != nil {
		out["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		out[TagPrefix+name] = values
	}
	if f.Since != nil {
		out["since"] = *f.Since
	}
	if f.Until != nil {
		out["until"] = *f.Until
	}
	if f.Limit != nil {
		out["limit"] = *f.Limit
	}
	return json.Marshal(out)
}

// String renders the filter for logs.
func (f Filter) String() string {
	raw, err := f.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Clone returns a deep copy of the filter.
func (f Filter) Clone() Filter {
	cp := Filter{
		IDs:     cloneSlice(f.IDs),
		Authors: cloneSlice(f.Authors),
		Kinds:   cloneSlice(f.Kinds),
		Since:   clonePtr(f.Since),
		Until:   clonePtr(f.Until),
		Limit:   clonePtr(f.Limit),
	}
	if f.Tags != nil {
		cp.Tags = make(map[string][]string, len(f.Tags))
		for name, values := range f.Tags {
			cp.Tags[name] = cloneSlice(values)
		}
	}
	return cp
}

// Clone returns a deep copy of the filter set.
func (fs Filters) Clone() Filters {
	if fs == nil {
		return nil
	}
	cp := make(Filters, len(fs))
	for i, f := range fs {
		cp[i] = f.Clone()
	}
	return cp
}

// Int64 returns a pointer to v, for building filters in code.
func Int64(v int64) *int64 { return &v }

// Int returns a pointer to v, for building filters in code.
func Int(v int) *int { return &v }

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
