package templating

import (
	"html/template"
	"reflect"
)

// add returns a + b.
func add(a, b int) int {
	return a + b
}

// sub returns a - b.
func sub(a, b int) int {
	return a - b
}

// div returns a / b (integer division). Returns 0 if b is 0.
func div(a, b int) int {
	if b == 0 {
		return 0
	}
	return a / b
}

// mult returns a * b.
func mult(a, b int) int {
	return a * b
}

// maxInt returns the larger of a and b.
func maxInt(a, b int) int {
	return max(a, b)
}

// minInt returns the smaller of a and b.
func minInt(a, b int) int {
	return min(a, b)
}

// mod returns a % b. Returns 0 if b is 0.
func mod(a, b int) int {
	if b == 0 {
		return 0
	}
	return a % b
}

func inc(i int) int {
	return i + 1
}

func dec(i int) int {
	return i - 1
}

// isSet returns true if a value is not its zero value.
func isSet(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	return !v.IsZero()
}

// defaultValue returns val unless it is unset, in which case fallback is returned.
// Argument order matches pipeline use: {{ .Data.title | default "Untitled" }}.
func defaultValue(fallback, val any) any {
	if !isSet(val) {
		return fallback
	}
	return val
}

// safeHTML marks s as trusted markup so html/template does not escape it.
// Only use it on content that comes from the site's own source tree.
func safeHTML(s string) template.HTML {
	return template.HTML(s)
}
