package yaml

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

func Unmarshal(in []byte, out any) error {
	return yaml.Unmarshal(in, out)
}

func Encode(v any, indent int) ([]byte, error) {
	b := bytes.NewBuffer(nil)
	e := yaml.NewEncoder(b)
	e.SetIndent(indent)

	if err := e.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Patch changes a single key/value pair inside the section named by path
// without reformatting the rest of the file. A nil value removes the key.
func Patch(src []byte, key string, value any, path ...string) ([]byte, error) {
	parent, err := findParent(src, path...)
	if err != nil {
		return nil, err
	}

	var dst []byte

	if parent != nil {
		dst, err = splice(src, key, value, parent)
	} else {
		dst, err = appendSection(src, key, value, path...)
	}
	if err != nil {
		return nil, err
	}

	// patched config must stay parseable
	if err = yaml.Unmarshal(dst, map[string]any{}); err != nil {
		return nil, err
	}

	return dst, nil
}

func findParent(src []byte, path ...string) (*yaml.Node, error) {
	if len(src) == 0 {
		return nil, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, err
	}
	if root.Content == nil {
		return nil, nil
	}

	parent := root.Content[0] // document node
	for _, name := range path {
		if parent == nil {
			break
		}
		_, parent = child(parent, name)
	}
	return parent, nil
}

// child returns the key/value node pair for name inside a mapping node.
func child(node *yaml.Node, name string) (key, value *yaml.Node) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == name {
			return node.Content[i], node.Content[i+1]
		}
	}
	return nil, nil
}

func lastLine(node *yaml.Node) int {
	for len(node.Content) > 0 {
		node = node.Content[len(node.Content)-1]
	}
	return node.Line
}

func splice(src []byte, key string, value any, parent *yaml.Node) ([]byte, error) {
	put, err := Encode(map[string]any{key: value}, 2)
	if err != nil {
		return nil, err
	}

	var i0, i1, column int

	if nodeKey, nodeValue := child(parent, key); nodeKey != nil {
		column = nodeKey.Column
		i0 = lineOffset(src, nodeKey.Line)
		i1 = lineOffset(src, lastLine(nodeValue)+1)
	} else {
		if len(parent.Content) == 0 {
			return nil, errors.New("yaml: empty section")
		}
		column = parent.Content[0].Column
		i0 = lineOffset(src, lastLine(parent)+1)
		i1 = i0
	}

	put = indent(put, column-1)

	if i0 < 0 { // key on the last line, no trailing newline
		src = append(src, '\n')
		i0 = len(src)
		i1 = i0
	} else if i1 < 0 {
		i1 = len(src)
	}

	dst := make([]byte, 0, len(src)+len(put))
	dst = append(dst, src[:i0]...)
	if value != nil {
		dst = append(dst, put...)
	}
	return append(dst, src[i1:]...), nil
}

func appendSection(src []byte, key string, value any, path ...string) ([]byte, error) {
	if len(path) != 1 || value == nil {
		return nil, errors.New("yaml: path not exist")
	}

	put, err := Encode(map[string]map[string]any{path[0]: {key: value}}, 2)
	if err != nil {
		return nil, err
	}

	dst := make([]byte, 0, len(src)+len(put)+1)
	dst = append(dst, src...)
	if l := len(src); l > 0 && src[l-1] != '\n' {
		dst = append(dst, '\n')
	}
	return append(dst, put...), nil
}

func indent(src []byte, n int) (dst []byte) {
	pre := bytes.Repeat([]byte{' '}, n)
	for len(src) > 0 {
		dst = append(dst, pre...)
		i := bytes.IndexByte(src, '\n') + 1
		if i == 0 {
			return append(dst, src...)
		}
		dst = append(dst, src[:i]...)
		src = src[i:]
	}
	return
}

// lineOffset returns the byte offset of 1-based line, or -1 past the end.
func lineOffset(b []byte, line int) (offset int) {
	for l := 1; ; l++ {
		if l == line {
			return offset
		}
		i := bytes.IndexByte(b[offset:], '\n') + 1
		if i == 0 {
			return -1
		}
		offset += i
	}
}
