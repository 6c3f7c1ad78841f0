// Package normalize maps raw CallRail payload records onto the field shape
// declared for their endpoint.
package normalize

import "github.com/Sternrassler/callrail-extractor/pkg/catalog"

// Record is one resource object, raw or normalized.
type Record = map[string]any

// Apply keeps the declared fields of raw. Declared fields that raw lacks are
// omitted. A nil record, or an endpoint without declared fields, returns raw
// unchanged, so a record is never lost here.
func Apply(ep catalog.Endpoint, raw Record) Record {
	if raw == nil {
		return raw
	}

	fields := ep.AllFields()
	if len(fields) == 0 {
		return raw
	}

	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := raw[f]; ok {
			out[f] = v
		}
	}
	return out
}

// ApplyAll normalizes a batch, preserving order.
func ApplyAll(ep catalog.Endpoint, raws []Record) []Record {
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Apply(ep, raw))
	}
	return out
}
