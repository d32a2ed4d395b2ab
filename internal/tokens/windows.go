package tokens

import (
	"maps"
	"strings"
)

// defaultWindows holds context window sizes keyed by model-name prefix.
var defaultWindows = map[string]int{
	"gpt-5":          400000,
	"gpt-4.1":        1047576,
	"gpt-4o":         128000,
	"gpt-4-turbo":    128000,
	"gpt-4-32k":      32768,
	"gpt-4":          8192,
	"gpt-3.5-turbo":  16385,
	"o1":             200000,
	"o3":             200000,
	"o4-mini":        200000,
	"text-embedding": 8191,
	"claude-":        200000,
	"gemini-1.5":     1048576,
	"gemini-2":       1048576,
	"deepseek-":      65536,
}

// Windows maps model-name prefixes to context window sizes in tokens.
type Windows map[string]int

// DefaultWindows returns a copy of the built-in window table.
func DefaultWindows() Windows {
	return maps.Clone(defaultWindows)
}

// WithOverrides returns a copy of w with the given entries added or replaced.
// Keys are matched case-insensitively; non-positive sizes remove the entry.
func (w Windows) WithOverrides(overrides map[string]int) Windows {
	out := maps.Clone(w)
	if out == nil {
		out = make(Windows, len(overrides))
	}
	for prefix, size := range overrides {
		prefix = strings.ToLower(prefix)
		if size <= 0 {
			delete(out, prefix)
			continue
		}
		out[prefix] = size
	}
	return out
}

// Lookup returns the window for model. The longest matching prefix wins.
func (w Windows) Lookup(model string) (int, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return 0, false
	}

	best, size := "", 0
	for prefix, n := range w {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best, size = prefix, n
		}
	}
	return size, best != ""
}

// ContextWindow looks up model in the built-in table.
func ContextWindow(model string) (int, bool) {
	return Windows(defaultWindows).Lookup(model)
}
