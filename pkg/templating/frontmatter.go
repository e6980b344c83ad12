package templating

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const frontMatterFence = "---"

// LayoutKey is the front matter key naming the layout a page or layout renders into.
const LayoutKey = "layout"

// ParseFrontMatter splits an optional leading YAML block fenced by "---" lines
// from the rest of src. Without front matter the returned map is empty and body is src.
func ParseFrontMatter(src []byte) (map[string]any, []byte, error) {
	data := map[string]any{}

	first, rest, ok := cutLine(src)
	if !ok || string(bytes.TrimRight(first, " \t")) != frontMatterFence {
		return data, src, nil
	}

	var block []byte
	for {
		var line []byte
		var more bool
		line, rest, more = cutLine(rest)
		if string(bytes.TrimRight(line, " \t")) == frontMatterFence {
			break
		}
		if !more {
			return nil, nil, fmt.Errorf("front matter is not terminated by %q", frontMatterFence)
		}
		block = append(block, line...)
		block = append(block, '\n')
	}

	if err := yaml.Unmarshal(block, &data); err != nil {
		return nil, nil, fmt.Errorf("failed to parse front matter: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, rest, nil
}

// cutLine returns the first line of b without its line ending, the remainder
// after it, and whether a line ending was found.
func cutLine(b []byte) (line, rest []byte, found bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, nil, false
	}
	line = b[:i]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return line, b[i+1:], true
}
