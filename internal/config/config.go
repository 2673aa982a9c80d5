// Package config implements a nested, dot-path configuration tree
// ("flags.debug", "testbeds.lab1.equipment") loaded from YAML.
//
// Unknown keys always resolve to a ConfigNotFoundError rather than
// silently yielding an empty value, and the tree is validated once at
// load time and is immutable for the remainder of the run.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"

	"devtester/internal/errors"
)

// Tree is an immutable nested configuration, addressed either by a single
// dotted path ("flags.debug") or by repeated Get calls.
type Tree struct {
	root map[string]interface{}
}

// Load reads and parses a YAML configuration file into a Tree. It does not
// itself interpret recognized keys; callers use Get and its typed variants
// to validate the specific keys they need.
func Load(data []byte) (*Tree, error) {
	var root map[string]interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.NewConfigValueError("<root>", err.Error())
	}
	if root == nil {
		root = map[string]interface{}{}
	}
	return &Tree{root: normalize(root)}, nil
}

// New builds a Tree directly from an in-memory map, primarily for tests
// and for programmatic construction by callers that already parsed their
// own configuration format.
func New(root map[string]interface{}) *Tree {
	return &Tree{root: normalize(root)}
}

// normalize recursively converts map[interface{}]interface{} (what
// gopkg.in/yaml.v2 produces for nested maps) into map[string]interface{}
// so path traversal can use plain string keys throughout.
func normalize(v interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	switch m := v.(type) {
	case map[string]interface{}:
		for k, val := range m {
			out[k] = normalizeValue(val)
		}
	case map[interface{}]interface{}:
		for k, val := range m {
			out[toString(k)] = normalizeValue(val)
		}
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		return normalize(t)
	case map[string]interface{}:
		return normalize(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Get resolves a dot-separated path against the tree. It returns
// ConfigNotFoundError if any path component is missing.
func (t *Tree) Get(path string) (interface{}, error) {
	parts := strings.Split(path, ".")
	var cur interface{} = t.root
	for i, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, errors.NewConfigNotFoundError(path)
		}
		v, ok := m[p]
		if !ok {
			return nil, errors.NewConfigNotFoundError(path)
		}
		if i == len(parts)-1 {
			return v, nil
		}
		cur = v
	}
	return nil, errors.NewConfigNotFoundError(path)
}

// GetString resolves path and type-asserts the result to a string.
func (t *Tree) GetString(path string) (string, error) {
	v, err := t.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.NewConfigValueError(path, "not a string")
	}
	return s, nil
}

// GetInt resolves path and type-asserts (or widens) the result to an int.
func (t *Tree) GetInt(path string) (int, error) {
	v, err := t.Get(path)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, errors.NewConfigValueError(path, "not an integer")
	}
}

// GetBool resolves path and type-asserts the result to a bool.
func (t *Tree) GetBool(path string) (bool, error) {
	v, err := t.Get(path)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.NewConfigValueError(path, "not a bool")
	}
	return b, nil
}

// StringOr resolves path, returning def if the key is absent. A present
// key of the wrong type is still a ConfigValueError, not silently
// replaced by def: only absence is lenient.
func (t *Tree) StringOr(path, def string) (string, error) {
	s, err := t.GetString(path)
	if errors.As(err, new(*errors.ConfigNotFoundError)) {
		return def, nil
	}
	return s, err
}

// IntOr resolves path, returning def if the key is absent.
func (t *Tree) IntOr(path string, def int) (int, error) {
	n, err := t.GetInt(path)
	if errors.As(err, new(*errors.ConfigNotFoundError)) {
		return def, nil
	}
	return n, err
}

// BoolOr resolves path, returning def if the key is absent.
func (t *Tree) BoolOr(path string, def bool) (bool, error) {
	b, err := t.GetBool(path)
	if errors.As(err, new(*errors.ConfigNotFoundError)) {
		return def, nil
	}
	return b, err
}
