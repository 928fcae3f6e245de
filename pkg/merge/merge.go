// Package merge fills gaps in a stored document from a versioned default
// template without clobbering user edits. It is used both when a document
// is first created and when an existing document is migrated toward the
// current default shape.
package merge

import "encoding/json"

// Defaults deep-merges defaults into current and returns the result.
//
// Rules, per key of an object-typed default:
//   - missing or nil in current: filled from defaults
//   - present in current: kept, unless the default value is itself an
//     object, in which case the merge recurses
//
// Arrays are never merged element-wise: an existing array wins wholesale,
// otherwise the default array is used as-is. Keys present in current but
// absent from defaults always survive. The inputs are not mutated.
func Defaults(current, defaults any) any {
	if _, ok := defaults.([]any); ok {
		if _, ok := current.([]any); ok {
			return current
		}
		return defaults
	}

	def, ok := defaults.(map[string]any)
	if !ok {
		if current == nil {
			return defaults
		}
		return current
	}

	out := map[string]any{}
	if cur, ok := current.(map[string]any); ok {
		for k, v := range cur {
			out[k] = v
		}
	}

	for key, defaultValue := range def {
		existing, present := out[key]
		switch {
		case !present || existing == nil:
			out[key] = defaultValue
		default:
			if _, isObj := defaultValue.(map[string]any); isObj {
				out[key] = Defaults(existing, defaultValue)
			}
		}
	}

	return out
}

// Equal reports whether two JSON-like values serialize identically.
// encoding/json writes map keys in sorted order, which makes marshaled
// bytes a canonical form for the document values this service handles.
// Every patch-if-changed path goes through this comparison.
func Equal(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
