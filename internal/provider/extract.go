package provider

// The provider has moved the output artifact between response shapes across
// versions without a version flag. Extraction is an ordered list of probes;
// the first non-empty match wins.

type extractor func(map[string]any) (string, bool)

var resultExtractors = []extractor{
	stringField("video_url"),
	stringField("url"),
	firstOfArray("videos"),
	firstOfArray("images"),
}

// ExtractResultURL probes the known artifact locations in priority order.
func ExtractResultURL(output map[string]any) (string, bool) {
	if len(output) == 0 {
		return "", false
	}
	for _, ex := range resultExtractors {
		if url, ok := ex(output); ok {
			return url, true
		}
	}
	return "", false
}

// stringField matches a direct string value under the given key.
func stringField(key string) extractor {
	return func(m map[string]any) (string, bool) {
		if s, ok := m[key].(string); ok && s != "" {
			return s, true
		}
		return "", false
	}
}

// firstOfArray matches the first element of an array under the given key,
// accepting either a plain string or a {url: string} object.
func firstOfArray(key string) extractor {
	return func(m map[string]any) (string, bool) {
		arr, ok := m[key].([]any)
		if !ok || len(arr) == 0 {
			return "", false
		}
		switch first := arr[0].(type) {
		case string:
			if first != "" {
				return first, true
			}
		case map[string]any:
			if s, ok := first["url"].(string); ok && s != "" {
				return s, true
			}
		}
		return "", false
	}
}
