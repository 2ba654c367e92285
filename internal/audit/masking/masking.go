// Package masking redacts payment references before they land in audit
// metadata.
package masking

import "strings"

const maskToken = "****"

// MaskReference keeps any "PREFIX-" segment and the last four characters.
func MaskReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskFields returns a copy of input with the named string fields masked.
func MaskFields(input map[string]any, fields ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}
	sensitive := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		sensitive[f] = struct{}{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		if _, ok := sensitive[key]; ok {
			if str, isStr := value.(string); isStr {
				out[key] = MaskReference(str)
				continue
			}
		}
		out[key] = value
	}
	return out
}

func splitPrefix(value string) (string, string) {
	idx := strings.LastIndexAny(value, "_-")
	if idx == -1 || idx == len(value)-1 {
		return "", value
	}
	return value[:idx+1], value[idx+1:]
}
