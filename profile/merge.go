package profile

// Defaults returns the system-wide default document. Every call returns a
// fresh copy.
func Defaults() map[string]any {
	return map[string]any{
		"business": map[string]any{
			"timezone": "America/Toronto",
		},
		"assistant": map[string]any{
			"personality": "Friendly, professional, and helpful",
		},
		"services": []any{
			map[string]any{
				"name":        "General inquiries",
				"description": "Questions about what we offer and how to get started",
			},
		},
		"calendar": map[string]any{
			"mode": CalendarLeadCapture,
		},
		"callHandling": map[string]any{
			"maxDurationSeconds":    600,
			"voicemailAfterSeconds": 300,
		},
	}
}

// Merge overlays override on base and returns a new document. Nested
// objects merge key by key; any other value present in override, arrays
// included, replaces the base value outright. An explicit null removes the
// key, so a bare "services:" in YAML clears the default list. Neither
// input is modified.
func Merge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = deepCopy(v)
	}
	for k, v := range override {
		if v == nil {
			delete(out, k)
			continue
		}
		baseObj, baseIsObj := out[k].(map[string]any)
		overObj, overIsObj := v.(map[string]any)
		if baseIsObj && overIsObj {
			out[k] = Merge(baseObj, overObj)
			continue
		}
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	default:
		return v
	}
}
