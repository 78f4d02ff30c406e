// Package setting загружает документ Setting из файла и следит за его
// изменениями.
//
// Документ — JSON или YAML (по расширению). Перед разбором ссылки вида
// ${VAR} заменяются значениями из .env рядом с файлом и из окружения
// процесса; неизвестные ссылки остаются как есть.
package setting

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/engine"
)

// Format — формат документа.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf определяет формат по расширению файла. По умолчанию JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load читает, раскрывает ${VAR} и валидирует Setting из файла.
func Load(path string) (*domain.Setting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read setting: %w", err)
	}

	vars, err := dotenv(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}

	return Parse(Expand(data, vars), FormatOf(path))
}

// Parse разбирает документ в указанном формате.
func Parse(data []byte, format Format) (*domain.Setting, error) {
	if format == FormatYAML {
		js, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("convert yaml setting: %w", err)
		}
		data = js
	}
	return engine.ParseSetting(data)
}

// dotenv читает .env. Отсутствие файла — пустой набор.
func dotenv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vars, nil
}

var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand заменяет ${VAR}: сначала из vars, затем из окружения.
// Другие формы ($VAR, $.path) не трогаются: это JSONPath и jq.
func Expand(data []byte, vars map[string]string) []byte {
	return varRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(varRef.FindSubmatch(ref)[1])
		if v, ok := vars[name]; ok {
			return []byte(v)
		}
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return ref
	})
}
