package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// ParseJSON разбирает JSON-документ в дерево map[string]any / []any /
// int64 / float64 / string / bool / nil.
func ParseJSON(data []byte) (any, error) {
	return oj.Parse(data)
}

// ReadJSONFile читает и разбирает JSON-файл.
func ReadJSONFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJSON(data)
}

// Select выбирает значения из документа.
//
// Выражения, начинающиеся с "$", — JSONPath ($.items[*].id).
// Выражения, начинающиеся с ".", — jq (.items[] | select(.ok) | .id).
// Любое другое выражение — ErrJSONPath.
func Select(doc any, expr string) ([]any, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "$"):
		x, err := jp.ParseString(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrJSONPath, err)
		}
		return x.Get(doc), nil

	case strings.HasPrefix(expr, "."):
		return selectJQ(doc, expr)

	default:
		return nil, fmt.Errorf("%w: %q", ErrJSONPath, expr)
	}
}

func selectJQ(doc any, expr string) ([]any, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSONPath, err)
	}

	var out []any
	it := q.Run(doc)
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			if err, ok := err.(*gojq.HaltError); ok && err.Value() == nil {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrJSONPath, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Value возвращает первое выбранное значение строкой: строки — как есть,
// остальное — JSON-представлением. Пробелы по краям обрезаются.
func Value(doc any, expr string) (string, error) {
	values, err := Select(doc, expr)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", ErrNoMatch
	}
	return Stringify(values[0]), nil
}

// ValueOr возвращает Value, а при любой ошибке — fallback.
func ValueOr(doc any, expr, fallback string) string {
	v, err := Value(doc, expr)
	if err != nil {
		return fallback
	}
	return v
}

// Stringify превращает значение в строку по правилам Value.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(JSONText(v))
}

// JSONText — компактное JSON-представление значения.
// Символы &, < и > не экранируются.
func JSONText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return oj.JSON(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
