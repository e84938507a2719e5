// Package jsonextra keeps JSON object fields a struct does not model, so
// OpenAI-shaped payloads pass through the proxy without losing data.
//
// A type opts in with an Extra map tagged `json:"-"` and two methods that
// convert to a method-less alias:
//
//	func (c Chunk) MarshalJSON() ([]byte, error) {
//		type plain Chunk
//		return jsonextra.Marshal(plain(c), c.Extra)
//	}
package jsonextra

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// knownCache maps a struct type to the set of JSON keys it declares.
var knownCache sync.Map

// Unmarshal decodes data into v, a pointer to a struct, and returns the
// object fields v has no field for. It returns nil when there are none.
func Unmarshal(data []byte, v any) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	known := knownKeys(reflect.TypeOf(v))
	for key := range fields {
		if known[key] {
			delete(fields, key)
		}
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// Marshal encodes v and adds the extra fields. Fields of v win over extra
// fields with the same key.
func Marshal(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for key, raw := range extra {
		if _, ok := fields[key]; !ok {
			fields[key] = raw
		}
	}
	return json.Marshal(fields)
}

func knownKeys(t reflect.Type) map[string]bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := knownCache.Load(t); ok {
		return cached.(map[string]bool)
	}

	known := make(map[string]bool, t.NumField())
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}
		known[name] = true
	}

	knownCache.Store(t, known)
	return known
}
