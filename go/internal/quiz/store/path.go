package store

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// documentSegment limits the first two path segments to characters every
// backend accepts in a key.
var documentSegment = regexp.MustCompile(`^[-_=a-zA-Z0-9]+$`)

// Join builds a store path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitPath separates a path into its document key and the path inside
// that document.
func SplitPath(path string) (docKey string, rel []string, err error) {
	segs := splitSegments(path)
	if len(segs) < 2 {
		return "", nil, fmt.Errorf("%w: %q needs at least two segments", ErrInvalidPath, path)
	}
	for _, s := range segs[:2] {
		if !documentSegment.MatchString(s) {
			return "", nil, fmt.Errorf("%w: bad segment %q in %q", ErrInvalidPath, s, path)
		}
	}
	return segs[0] + "/" + segs[1], segs[2:], nil
}

func splitSegments(path string) []string {
	raw := strings.Split(strings.Trim(path, "/"), "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// GetIn reads the value at rel inside a tree value. Missing paths read as nil.
func GetIn(tree any, rel string) any {
	return getIn(tree, splitSegments(rel))
}

func getIn(tree any, segs []string) any {
	cur := tree
	for _, s := range segs {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[s]
		case []any:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

// SetIn writes value at rel inside tree and returns the new root. Missing
// intermediate nodes are created as maps; a nil value deletes the key.
func SetIn(tree any, rel string, value any) (any, error) {
	return setIn(tree, splitSegments(rel), value)
}

func setIn(tree any, segs []string, value any) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}
	head, rest := segs[0], segs[1:]

	if list, ok := tree.([]any); ok {
		i, err := strconv.Atoi(head)
		if err != nil || i < 0 || i >= len(list) {
			return nil, fmt.Errorf("%w: index %q out of range", ErrInvalidPath, head)
		}
		child, err := setIn(list[i], rest, value)
		if err != nil {
			return nil, err
		}
		list[i] = child
		return list, nil
	}

	node, ok := tree.(map[string]any)
	if !ok {
		if value == nil {
			return tree, nil
		}
		node = make(map[string]any)
	}
	if len(rest) == 0 && value == nil {
		delete(node, head)
		return node, nil
	}
	child, err := setIn(node[head], rest, value)
	if err != nil {
		return nil, err
	}
	if child == nil {
		delete(node, head)
	} else {
		node[head] = child
	}
	return node, nil
}

// sortedFieldPaths orders update fields so parents are written before
// their children.
func sortedFieldPaths(fields map[string]any) []string {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := strings.Count(paths[i], "/"), strings.Count(paths[j], "/")
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
	return paths
}
