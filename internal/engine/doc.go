// Package engine содержит движок раскрытия шагов в кортежи.
//
// Включает:
//   - parser.go    — парсинг и валидация Setting из JSON
//   - template.go  — рендеринг Handlebars-шаблонов ({{page}})
//   - jsonpath.go  — выборка значений из JSON (JSONPath и jq)
//   - generator.go — генераторы значений (Vec, Range, Pattern, ...)
//   - iterator.go  — зависимое декартово произведение генераторов
//
// Engine отвечает за то, какие кортежи получит шаг и в каком порядке;
// что делать с каждым кортежем, решает пакет jobs.
package engine
