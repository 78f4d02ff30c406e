package jobs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/engine"
)

const tmpSuffix = ".tmp"

// outputPath рендерит каталог (значения контекста очищены) и имя файла
// (очищается результат) и возвращает каталог и полный путь.
func outputPath(dirTmpl, filenameTmpl string, ctx domain.Context) (string, string, error) {
	dir, err := engine.RenderSafeDir(dirTmpl, ctx)
	if err != nil {
		return "", "", err
	}
	name, err := engine.Render(filenameTmpl, ctx)
	if err != nil {
		return "", "", err
	}
	return dir, filepath.Join(dir, engine.SanitizeFilename(name)), nil
}

// ensureDir создаёт каталог со всеми родителями, если его нет.
func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// exists возвращает true, если путь существует.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// removeIfExists удаляет файл; отсутствие файла ошибкой не считается.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// writeAtomic пишет data в path+".tmp" и переименовывает поверх path.
// Читатель никогда не видит частично записанный path.
func writeAtomic(path string, data []byte) error {
	tmp := path + tmpSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// lookupEncoding находит кодировку по WHATWG-метке.
// Неизвестная или пустая метка — UTF-8.
func lookupEncoding(label string) encoding.Encoding {
	if label == "" {
		return unicode.UTF8
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return unicode.UTF8
	}
	return enc
}

// decode переводит байты в UTF-8; недекодируемые последовательности
// заменяются на U+FFFD.
func decode(label string, data []byte) string {
	out, err := lookupEncoding(label).NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}
