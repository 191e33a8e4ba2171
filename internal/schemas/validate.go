package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ViolationError описывает первое найденное несоответствие ответа схеме.
type ViolationError struct {
	Path   string
	Reason string
}

func (e *ViolationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Decode разбирает JSON с сохранением чисел как json.Number,
// чтобы отличать integer от number при проверке.
func Decode(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// Хвост после первого значения - тоже ошибка формата.
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after top-level JSON value")
	}
	return v, nil
}

// Check проверяет структуру значения: типы, обязательные поля и вложенные элементы.
// Семантику (уникальность номеров, ссылки на сцены) не проверяет.
func Check(value interface{}, schema Schema) error {
	return check(value, schema, "")
}

func check(value interface{}, schema Schema, path string) error {
	typ, _ := schema["type"].(string)
	switch typ {
	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return mismatch(path, "object", value)
		}
		for _, name := range requiredOf(schema) {
			v, present := obj[name]
			if !present || v == nil {
				return &ViolationError{Path: join(path, name), Reason: "required property missing"}
			}
		}
		props, _ := schema["properties"].(Schema)
		// Сортируем ключи, чтобы ошибка была детерминированной.
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v, present := obj[name]
			if !present || v == nil {
				continue
			}
			propSchema, _ := props[name].(Schema)
			if err := check(v, propSchema, join(path, name)); err != nil {
				return err
			}
		}
		return nil
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			return mismatch(path, "array", value)
		}
		items, _ := schema["items"].(Schema)
		if items == nil {
			return nil
		}
		for i, item := range arr {
			if err := check(item, items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case "string":
		if _, ok := value.(string); !ok {
			return mismatch(path, "string", value)
		}
		return nil
	case "integer":
		n, ok := value.(json.Number)
		if !ok {
			return mismatch(path, "integer", value)
		}
		if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
			return &ViolationError{Path: path, Reason: fmt.Sprintf("expected integer, got %s", n.String())}
		}
		return nil
	case "number":
		if _, ok := value.(json.Number); !ok {
			return mismatch(path, "number", value)
		}
		return nil
	case "boolean":
		if _, ok := value.(bool); !ok {
			return mismatch(path, "boolean", value)
		}
		return nil
	default:
		// Тип не задан - принимаем любое значение.
		return nil
	}
}

func requiredOf(schema Schema) []string {
	switch r := schema["required"].(type) {
	case []string:
		return r
	case []interface{}:
		out := make([]string, 0, len(r))
		for _, v := range r {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func mismatch(path, want string, got interface{}) error {
	return &ViolationError{Path: path, Reason: fmt.Sprintf("expected %s, got %s", want, jsonTypeName(got))}
}

func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
