package docstore

import (
	"reflect"
	"strconv"
	"strings"
)

// EncodeOver encodes v like Encode and then carries over every field of base
// that the type of v does not model, at any nesting level. Fields the type
// models always come from v, even when v omits them. Entries of modeled
// lists are paired with the base entries by their "id" field.
//
// It lets a typed value loaded from base be written back without losing the
// parts of the document the type does not know about.
func EncodeOver(base Document, v any) (Document, error) {
	doc, err := Encode(v)
	if err != nil {
		return nil, err
	}
	if len(base) > 0 {
		carryOver(doc, base, reflect.TypeOf(v))
	}
	return doc, nil
}

func carryOver(dst, base map[string]any, t reflect.Type) {
	fields := jsonFields(t)
	if fields == nil {
		return
	}
	for key, bv := range base {
		ft, modeled := fields[key]
		dv, present := dst[key]
		if !modeled {
			if !present {
				dst[key] = deepCopy(bv)
			}
			continue
		}
		if !present {
			continue
		}
		switch d := dv.(type) {
		case map[string]any:
			if b, ok := bv.(map[string]any); ok {
				carryOver(d, b, ft)
			}
		case []any:
			if b, ok := bv.([]any); ok {
				carryOverList(d, b, elemType(ft))
			}
		}
	}
}

func carryOverList(dst, base []any, t reflect.Type) {
	if t == nil {
		return
	}
	byID := make(map[string]map[string]any, len(base))
	for _, e := range base {
		if m, ok := e.(map[string]any); ok {
			if id := idKey(m["id"]); id != "" {
				byID[id] = m
			}
		}
	}
	for _, e := range dst {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if b, ok := byID[idKey(m["id"])]; ok {
			carryOver(m, b, t)
		}
	}
}

// idKey compares string and numeric ids by their decimal form.
func idKey(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return ""
}

func elemType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || (t.Kind() != reflect.Slice && t.Kind() != reflect.Array) {
		return nil
	}
	return t.Elem()
}

// jsonFields returns the JSON names of the fields of a struct type, or nil
// when t is not a struct.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	fields := map[string]reflect.Type{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() && !f.Anonymous {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			for k, ft := range jsonFields(f.Type) {
				if _, ok := fields[k]; !ok {
					fields[k] = ft
				}
			}
			continue
		}
		if name == "" {
			name = f.Name
		}
		fields[name] = f.Type
	}
	return fields
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	}
	return v
}
