package templating

import (
	"reflect"
	"sort"
	"strings"
)

// repeat returns a slice of integers from 0 to count-1.
func repeat(count int) []int {
	if count < 0 {
		return []int{}
	}
	s := make([]int, count)
	for i := 0; i < count; i++ {
		s[i] = i
	}
	return s
}

// list returns a slice containing all the arguments passed to it.
func list(args ...any) []any {
	return args
}

// first returns the first element of a slice or array, or nil if it is empty.
func first(slice any) any {
	if slice == nil {
		return nil
	}
	val := reflect.ValueOf(slice)
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		// Fail silently, templates treat nil as empty.
		return nil
	}
	if val.Len() == 0 {
		return nil
	}
	return val.Index(0).Interface()
}

// sortedKeys returns the keys of a string-keyed map in lexical order, so
// ranging over front matter maps renders deterministically.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// join concatenates the string form of elems with sep.
func join(sep string, elems []string) string {
	return strings.Join(elems, sep)
}
