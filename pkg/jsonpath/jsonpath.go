// Package jsonpath reads and writes values at a nested path inside decoded
// JSON trees (map[string]interface{} / []interface{} as produced by
// encoding/json). Numeric-string segments index slices.
package jsonpath

import (
	"fmt"
	"strconv"
)

// Get walks path through nested objects and arrays and returns the value at
// the final segment. The second return is false when any intermediate segment
// is absent or not a container. Get never panics and never mutates root.
func Get(root interface{}, path []string) (interface{}, bool) {
	current := root
	for _, segment := range path {
		switch node := current.(type) {
		case map[string]interface{}:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []interface{}:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set returns a deep copy of root with value assigned at path. The input tree
// is never mutated. Absent or non-container intermediate segments and
// out-of-range array indices return an error; the final segment may be a new
// key on a map but must be an existing index on a slice.
func Set(root interface{}, path []string, value interface{}) (interface{}, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("path must not be empty")
	}

	copied := deepCopy(root)
	current := copied
	for i, segment := range path[:len(path)-1] {
		next, ok := step(current, segment)
		if !ok {
			return nil, fmt.Errorf("path segment %q (index %d) does not resolve to a container", segment, i)
		}
		current = next
	}

	last := path[len(path)-1]
	switch node := current.(type) {
	case map[string]interface{}:
		node[last] = value
	case []interface{}:
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(node) {
			return nil, fmt.Errorf("array index %q out of range", last)
		}
		node[idx] = value
	default:
		return nil, fmt.Errorf("cannot assign %q on a non-container value", last)
	}
	return copied, nil
}

func step(current interface{}, segment string) (interface{}, bool) {
	switch node := current.(type) {
	case map[string]interface{}:
		value, ok := node[segment]
		if !ok {
			return nil, false
		}
		return value, isContainer(value)
	case []interface{}:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(node) {
			return nil, false
		}
		return node[idx], isContainer(node[idx])
	default:
		return nil, false
	}
}

func isContainer(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	default:
		return false
	}
}

func deepCopy(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(node))
		for key, value := range node {
			copied[key] = deepCopy(value)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(node))
		for i, value := range node {
			copied[i] = deepCopy(value)
		}
		return copied
	default:
		return node
	}
}
