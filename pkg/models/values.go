package models

import (
	"maps"
	"slices"
)

const (
	structureSampleItems  = 3
	structureFieldLimit   = 10
	structureStringSample = 50
)

// CloneMap deep-copies a JSON-like mapping. Nested maps and slices are copied,
// other values are shared.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}

	return out
}

// CloneValue deep-copies maps and slices inside v.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}

		return out
	default:
		return v
	}
}

// MergeConfig overlays overrides on top of defaults key by key.
func MergeConfig(defaults, overrides map[string]any) map[string]any {
	merged := CloneMap(defaults)
	for k, v := range overrides {
		merged[k] = CloneValue(v)
	}

	return merged
}

// KindOf returns the port kind matching the runtime type of v.
func KindOf(v any) PortKind {
	switch v.(type) {
	case nil:
		return PortKindAny
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return PortKindNumber
	case string:
		return PortKindString
	case bool:
		return PortKindBoolean
	case []any:
		return PortKindArray
	case map[string]any:
		return PortKindObject
	default:
		return PortKindJSON
	}
}

// DescribeValue builds the format recorded for a port value. When the value
// is absent the declared kind is used.
func DescribeValue(v any, declared PortKind) ValueFormat {
	if v == nil {
		return ValueFormat{Type: string(declared)}
	}

	return ValueFormat{Type: string(KindOf(v)), Structure: Structure(v)}
}

// Structure sketches v: samples of scalars, the first items of lists and
// the first fields of objects.
func Structure(v any) *ValueStructure {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case string:
		sample := val
		if r := []rune(val); len(r) > structureStringSample {
			sample = string(r[:structureStringSample])
		}

		return &ValueStructure{Type: string(PortKindString), Sample: sample}
	case bool:
		return &ValueStructure{Type: string(PortKindBoolean)}
	case []any:
		n := len(val)
		s := &ValueStructure{Type: string(PortKindArray), Length: &n}

		for _, item := range val[:min(n, structureSampleItems)] {
			s.Samples = append(s.Samples, Structure(item))
		}

		return s
	case map[string]any:
		s := &ValueStructure{Type: string(PortKindObject), Fields: map[string]*ValueStructure{}}

		keys := slices.Sorted(maps.Keys(val))
		for _, k := range keys[:min(len(keys), structureFieldLimit)] {
			s.Fields[k] = Structure(val[k])
		}

		s.More = max(len(keys)-structureFieldLimit, 0)

		return s
	}

	if KindOf(v) == PortKindNumber {
		return &ValueStructure{Type: string(PortKindNumber), Sample: v}
	}

	return &ValueStructure{Type: string(PortKindJSON)}
}
