package pipeline

import "strings"

// stripAccelerator removes a leading accelerator-key hint — `[K]`, `K)`,
// or `K - ` — from a label, used both by edge-label normalization
// and by WaitForHuman's choice-key extraction.
func stripAccelerator(label string) string {
	if len(label) >= 3 && label[0] == '[' {
		if end := strings.IndexByte(label, ']'); end > 0 {
			return strings.TrimSpace(label[end+1:])
		}
	}
	if len(label) >= 2 && label[1] == ')' {
		return strings.TrimSpace(label[2:])
	}
	if idx := strings.Index(label, " - "); idx == 1 {
		return strings.TrimSpace(label[idx+3:])
	}
	return label
}

// acceleratorKey derives the single uppercase key WaitForHuman presents
// for a choice: the accelerator hint stripped from the label if present,
// uppercased; otherwise the label's own first character, uppercased.
func acceleratorKey(label string) string {
	trimmed := strings.TrimSpace(label)
	if len(trimmed) >= 3 && trimmed[0] == '[' {
		if end := strings.IndexByte(trimmed, ']'); end > 0 {
			key := trimmed[1:end]
			if key != "" {
				return strings.ToUpper(key[:1])
			}
		}
	}
	if len(trimmed) >= 2 && trimmed[1] == ')' {
		return strings.ToUpper(trimmed[:1])
	}
	if idx := strings.Index(trimmed, " - "); idx == 1 {
		return strings.ToUpper(trimmed[:1])
	}
	stripped := stripAccelerator(trimmed)
	if stripped == "" {
		return ""
	}
	return strings.ToUpper(stripped[:1])
}
