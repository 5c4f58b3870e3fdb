package executor

import "reflect"

// MaxReturnedItems is the most list items handed back to a caller
const MaxReturnedItems = 20

// Truncate bounds a payload for the wire. A top-level list keeps its first
// MaxReturnedItems items; an object has each list-valued key cut the same
// way and its other keys left alone. Anything else is returned unchanged.
// The input is never modified and Truncate(Truncate(v)) == Truncate(v).
func Truncate(payload any) (any, bool) {
	switch v := payload.(type) {
	case nil:
		return nil, false
	case map[string]any:
		var out map[string]any
		for k, inner := range v {
			cut, ok := truncateList(inner)
			if !ok {
				continue
			}
			if out == nil {
				out = make(map[string]any, len(v))
				for kk, vv := range v {
					out[kk] = vv
				}
			}
			out[k] = cut
		}
		if out == nil {
			return payload, false
		}
		return out, true
	default:
		return truncateList(payload)
	}
}

// truncateList cuts any slice other than []byte; it reports false when v is
// not a slice or is already short enough.
func truncateList(v any) (any, bool) {
	if v == nil {
		return v, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return v, false
	}
	if rv.Len() <= MaxReturnedItems {
		return v, false
	}
	out := reflect.MakeSlice(rv.Type(), MaxReturnedItems, MaxReturnedItems)
	reflect.Copy(out, rv.Slice(0, MaxReturnedItems))
	return out.Interface(), true
}
