package nvuemock

// MergePatch applies an RFC 7396 JSON merge patch to target and returns the
// result. Objects are merged recursively, null removes a key, and any other
// value replaces the target. target may be modified in place.
func MergePatch(target, patch any) any {
	p, ok := patch.(map[string]any)
	if !ok {
		return deepCopy(patch)
	}
	t, ok := target.(map[string]any)
	if !ok {
		t = map[string]any{}
	}
	for k, v := range p {
		if v == nil {
			delete(t, k)
			continue
		}
		t[k] = MergePatch(t[k], v)
	}
	return t
}

// replayPatches merges patches into target one after another. A null followed
// by an object for the same key replaces the old value, which a single
// composed patch cannot express.
func replayPatches(target map[string]any, patches []map[string]any) map[string]any {
	var out any = target
	for _, p := range patches {
		out = MergePatch(out, p)
	}
	result, ok := out.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return result
}

// composePatch folds patch into an accumulated patch. Unlike MergePatch it
// keeps null members so the summary still shows deleted keys. It is lossy for
// a null followed by an object; commits use replayPatches instead.
func composePatch(acc map[string]any, patch map[string]any) map[string]any {
	if acc == nil {
		acc = map[string]any{}
	}
	for k, v := range patch {
		nested, isObject := v.(map[string]any)
		prev, prevIsObject := acc[k].(map[string]any)
		if isObject && prevIsObject {
			acc[k] = composePatch(prev, nested)
			continue
		}
		acc[k] = deepCopy(v)
	}
	return acc
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return val
	}
}
