package designformat

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// fieldTypes maps json names to field types, per struct type
var fieldTypes sync.Map

func jsonFields(t reflect.Type) map[string]reflect.Type {
	if v, ok := fieldTypes.Load(t); ok {
		return v.(map[string]reflect.Type)
	}
	out := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		out[name] = f.Type
	}
	fieldTypes.Store(t, out)
	return out
}

// decodeObject decodes a JSON object into dst, a pointer to a struct
// without custom unmarshalers. Values of the wrong JSON type are coerced
// where the intent is clear ("14" for a number, 14 for a string) and
// dropped otherwise. Keys dst does not declare are returned untouched.
// Keys listed in skip are neither decoded nor returned.
func decodeObject(data []byte, dst interface{}, skip ...string) (map[string]json.RawMessage, map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	fields := jsonFields(reflect.TypeOf(dst).Elem())
	clean := make(map[string]json.RawMessage, len(raw))
	var extra map[string]json.RawMessage
	for key, val := range raw {
		if contains(skip, key) {
			continue
		}
		typ, known := fields[key]
		if !known {
			var buf bytes.Buffer
			if json.Compact(&buf, val) != nil {
				continue
			}
			if extra == nil {
				extra = make(map[string]json.RawMessage)
			}
			extra[key] = buf.Bytes()
			continue
		}
		if fixed, ok := coerce(val, typ); ok {
			clean[key] = fixed
		}
	}

	data, err := json.Marshal(clean)
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, nil, err
	}
	return raw, extra, nil
}

func coerce(val json.RawMessage, typ reflect.Type) (json.RawMessage, bool) {
	if json.Unmarshal(val, reflect.New(typ).Interface()) == nil {
		return val, true
	}

	base := typ
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}

	var v interface{}
	if err := json.Unmarshal(val, &v); err != nil {
		return nil, false
	}

	switch base.Kind() {
	case reflect.Float64, reflect.Int:
		var n float64
		switch x := v.(type) {
		case float64:
			n = x
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, false
			}
			n = parsed
		default:
			return nil, false
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, false
		}
		if base.Kind() == reflect.Int {
			n = math.Trunc(n)
		}
		out, err := json.Marshal(n)
		return out, err == nil
	case reflect.String:
		switch v.(type) {
		case float64, bool:
			out, err := json.Marshal(string(bytes.TrimSpace(val)))
			return out, err == nil
		}
	}
	return nil, false
}

// encodeObject marshals v and appends the extra keys after the declared
// ones, in sorted order. Extra keys that v already writes are skipped.
func encodeObject(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var written map[string]json.RawMessage
	if err := json.Unmarshal(data, &written); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if _, ok := written[k]; !ok {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return data, nil
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.Write(data[:len(data)-1])
	for _, k := range keys {
		val := extra[k]
		if !json.Valid(val) {
			continue
		}
		if b.Len() > 1 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		b.Write(name)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func copyExtra(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
