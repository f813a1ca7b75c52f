package event

import "strings"

// Filter drops records by name before they reach the shipper.
type Filter struct {
	// Include, when non-empty, keeps only names containing one of the entries.
	Include []string
	// Exclude drops names equal to or containing one of the entries.
	Exclude []string
	// SinkURL is the log store endpoint; requests to it are never logged.
	SinkURL string
}

// Keep reports whether the record should be shipped.
func (f Filter) Keep(r Record) bool {
	if len(f.Include) > 0 && !containsAny(r.Name, f.Include) {
		return false
	}
	if containsAny(r.Name, f.Exclude) {
		return false
	}

	if r.Kind == KindResource {
		// Source maps are noise
		if strings.Contains(r.Name, ".map") {
			return false
		}
		if f.SinkURL != "" && strings.HasPrefix(r.Name, f.SinkURL) {
			return false
		}
	}

	return true
}

// Apply returns the kept records, preserving order.
func (f Filter) Apply(batch Batch) Batch {
	kept := make(Batch, 0, len(batch))
	for _, r := range batch {
		if f.Keep(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

func containsAny(name string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(name, n) {
			return true
		}
	}
	return false
}
