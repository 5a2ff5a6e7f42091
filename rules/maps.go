package rules

import "strings"

// TextMap is an insertion-ordered placeholder → text map. Overwriting a key
// keeps its original position.
type TextMap struct {
	keys   []string
	values map[string]string
}

func NewTextMap() *TextMap {
	return &TextMap{values: make(map[string]string)}
}

func (m *TextMap) Set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *TextMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *TextMap) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m *TextMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Apply replaces every key in s, one literal pass per key in map order.
func (m *TextMap) Apply(s string) string {
	for _, k := range m.keys {
		if strings.Contains(s, k) {
			s = strings.ReplaceAll(s, k, m.values[k])
		}
	}
	return s
}

// ImageMap is an insertion-ordered placeholder → image source map.
type ImageMap struct {
	keys   []string
	values map[string]ImageSource
}

func NewImageMap() *ImageMap {
	return &ImageMap{values: make(map[string]ImageSource)}
}

func (m *ImageMap) Set(key string, src ImageSource) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = src
}

func (m *ImageMap) Get(key string) (ImageSource, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *ImageMap) Len() int { return len(m.keys) }

func (m *ImageMap) Keys() []string {
	return append([]string(nil), m.keys...)
}
