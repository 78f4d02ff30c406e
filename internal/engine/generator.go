package engine

import (
	"iter"
	"log/slog"
	"math"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/shaiso/harvester/internal/domain"
)

// Generate возвращает ленивую последовательность Binding для генератора.
//
// Шаблонные поля рендерятся против ctx в момент первого обращения к
// последовательности. Любая ошибка (шаблон, glob, чтение файла, JSON,
// JSONPath, разбор числа) не фатальна: последовательность просто
// заканчивается. Для нового контекста нужна новая последовательность.
func Generate(spec domain.GeneratorSpec, ctx domain.Context) iter.Seq[domain.Binding] {
	switch spec.Kind {
	case domain.GeneratorVec:
		return vecSeq(spec.Vec)
	case domain.GeneratorRange:
		return rangeSeq(spec.Range, ctx)
	case domain.GeneratorPattern:
		return patternSeq(spec.Pattern)
	case domain.GeneratorRangePattern:
		return rangePatternSeq(spec.RangePattern, ctx)
	case domain.GeneratorGlobJSONPattern:
		return globJSONPatternSeq(spec.GlobJSONPattern, ctx)
	case domain.GeneratorGlobJSONRangePattern:
		return globJSONRangePatternSeq(spec.GlobJSONRangePattern, ctx)
	default:
		slog.Debug("unknown generator kind", "kind", spec.Kind)
		return empty
	}
}

func empty(func(domain.Binding) bool) {}

func vecSeq(g *domain.VecGenerator) iter.Seq[domain.Binding] {
	return func(yield func(domain.Binding) bool) {
		for _, v := range g.Val {
			if !yield(domain.Binding{g.Name: v}) {
				return
			}
		}
	}
}

func rangeSeq(g *domain.RangeGenerator, ctx domain.Context) iter.Seq[domain.Binding] {
	return func(yield func(domain.Binding) bool) {
		offset, err := Render(g.Offset, ctx)
		if err != nil {
			skip("range", g.Name, err)
			return
		}
		take, err := Render(g.Take, ctx)
		if err != nil {
			skip("range", g.Name, err)
			return
		}
		yieldRange(g.Name, offset, take, yield)
	}
}

func patternSeq(g *domain.PatternGenerator) iter.Seq[domain.Binding] {
	return func(yield func(domain.Binding) bool) {
		paths, err := doublestar.FilepathGlob(g.GlobPattern, doublestar.WithFilesOnly())
		if err != nil {
			skip("pattern", g.Name, err)
			return
		}
		for _, path := range paths {
			doc, err := ReadJSONFile(path)
			if err != nil {
				skip("pattern", g.Name, err)
				continue
			}
			values, err := Select(doc, g.ContentPattern)
			if err != nil {
				skip("pattern", g.Name, err)
				continue
			}
			for _, v := range values {
				if !yield(domain.Binding{g.Name: JSONText(v)}) {
					return
				}
			}
		}
	}
}

func rangePatternSeq(g *domain.RangePatternGenerator, ctx domain.Context) iter.Seq[domain.Binding] {
	return func(yield func(domain.Binding) bool) {
		path, err := Render(g.GlobPattern, ctx)
		if err != nil {
			skip("range_pattern", g.Name, err)
			return
		}
		offset, err := Render(g.Offset, ctx)
		if err != nil {
			skip("range_pattern", g.Name, err)
			return
		}
		take, err := Render(g.Take, ctx)
		if err != nil {
			skip("range_pattern", g.Name, err)
			return
		}

		doc, err := ReadJSONFile(path)
		if err != nil {
			skip("range_pattern", g.Name, err)
			return
		}
		yieldRange(g.Name, ValueOr(doc, offset, offset), ValueOr(doc, take, take), yield)
	}
}

func globJSONPatternSeq(g *domain.GlobJSONPatternGenerator, ctx domain.Context) iter.Seq[domain.Binding] {
	return func(yield func(domain.Binding) bool) {
		glob, err := Render(g.GlobPattern, ctx)
		if err != nil {
			skip("glob_json_pattern", "", err)
			return
		}
		itemPattern, err := Render(g.ItemPattern, ctx)
		if err != nil {
			skip("glob_json_pattern", "", err)
			return
		}

		fields := make(map[string]string, len(g.EnvPattern))
		for name, tmpl := range g.EnvPattern {
			path, err := Render(tmpl, ctx)
			if err != nil {
				skip("glob_json_pattern", name, err)
				continue
			}
			fields[name] = path
		}

		paths, err := doublestar.FilepathGlob(glob, doublestar.WithFilesOnly())
		if err != nil {
			skip("glob_json_pattern", "", err)
			return
		}
		for _, path := range paths {
			doc, err := ReadJSONFile(path)
			if err != nil {
				skip("glob_json_pattern", "", err)
				continue
			}
			items, err := Select(doc, itemPattern)
			if err != nil {
				skip("glob_json_pattern", "", err)
				continue
			}
			for _, item := range items {
				b := make(domain.Binding, len(fields))
				for name, path := range fields {
					if v, err := Value(item, path); err == nil {
						b[name] = v
					}
				}
				if !yield(b) {
					return
				}
			}
		}
	}
}

func globJSONRangePatternSeq(g *domain.GlobJSONRangePatternGenerator, ctx domain.Context) iter.Seq[domain.Binding] {
	return func(yield func(domain.Binding) bool) {
		glob, err := Render(g.FilePattern, ctx)
		if err != nil {
			skip("glob_json_range_pattern", g.Name, err)
			return
		}
		offset, err := Render(g.OffsetPattern, ctx)
		if err != nil {
			skip("glob_json_range_pattern", g.Name, err)
			return
		}
		take, err := Render(g.TakePattern, ctx)
		if err != nil {
			skip("glob_json_range_pattern", g.Name, err)
			return
		}

		paths, err := doublestar.FilepathGlob(glob, doublestar.WithFilesOnly())
		if err != nil || len(paths) == 0 {
			skip("glob_json_range_pattern", g.Name, err)
			return
		}
		doc, err := ReadJSONFile(paths[0])
		if err != nil {
			skip("glob_json_range_pattern", g.Name, err)
			return
		}
		yieldRange(g.Name, ValueOr(doc, offset, offset), ValueOr(doc, take, take), yield)
	}
}

// yieldRange выдаёт name = offset .. offset+take-1 по возрастанию.
// Диапазон обрывается на math.MaxUint64.
func yieldRange(name, offsetStr, takeStr string, yield func(domain.Binding) bool) {
	offset, err := strconv.ParseUint(offsetStr, 10, 64)
	if err != nil {
		skip("range", name, err)
		return
	}
	take, err := strconv.ParseUint(takeStr, 10, 64)
	if err != nil {
		skip("range", name, err)
		return
	}
	for n := uint64(0); n < take; n++ {
		i := offset + n
		if !yield(domain.Binding{name: strconv.FormatUint(i, 10)}) {
			return
		}
		if i == math.MaxUint64 {
			slog.Debug("range truncated at uint64 max", "name", name)
			return
		}
	}
}

func skip(kind, name string, err error) {
	if err == nil {
		slog.Debug("generator produced no files", "kind", kind, "name", name)
		return
	}
	slog.Debug("generator skipped", "kind", kind, "name", name, "error", err)
}
