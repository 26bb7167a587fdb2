package filter

import (
	"strings"

	"github.com/ephemeral/relay/event"
)

// Matches reports whether evt satisfies every present field of the filter.
//
// Field rules:
//
//	ids      → evt.ID has one of the prefixes
//	authors  → evt.PubKey has one of the prefixes
//	kinds    → evt.Kind is a member
//	#<name>  → evt has a tag [name, v, ...] with v in the values (AND across names)
//	since    → evt.CreatedAt >= since
//	until    → evt.CreatedAt <= until
//
// Limit is not consulted.
func (f Filter) Matches(evt *event.Event) bool {
	if evt == nil {
		return false
	}
	if f.IDs != nil && !hasPrefix(f.IDs, evt.ID) {
		return false
	}
	if f.Authors != nil && !hasPrefix(f.Authors, evt.PubKey) {
		return false
	}
	if f.Kinds != nil && !containsKind(f.Kinds, evt.Kind) {
		return false
	}
	for name, values := range f.Tags {
		if !evt.HasTag(name, values) {
			return false
		}
	}
	if f.Since != nil && evt.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && evt.CreatedAt > *f.Until {
		return false
	}
	return true
}

// Match reports whether any filter in the set matches evt. An empty set matches nothing.
func (fs Filters) Match(evt *event.Event) bool {
	for _, f := range fs {
		if f.Matches(evt) {
			return true
		}
	}
	return false
}

func hasPrefix(prefixes []string, s string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsKind(kinds []int, kind int) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
