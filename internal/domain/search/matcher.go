// Package search — простейший поиск по тексту сообщений: подстрока без учёта регистра
// с нормализацией пробелов и буквы «ё». Никакой другой логики над содержимым сообщений нет.
package search

import (
	"regexp"
	"strings"
)

var spaces = regexp.MustCompile(`\s+`)

// Matcher проверяет вхождение заранее нормализованной подстроки.
// Пустой шаблон совпадает с любым текстом.
type Matcher struct {
	needle string
}

// NewMatcher готовит шаблон к многократным проверкам.
func NewMatcher(substr string) Matcher {
	return Matcher{needle: normalizeText(substr)}
}

// Empty сообщает, что шаблон пуст и пропускает всё.
func (m Matcher) Empty() bool {
	return m.needle == ""
}

// Match проверяет, содержит ли text шаблон.
func (m Matcher) Match(text string) bool {
	if m.needle == "" {
		return true
	}
	return strings.Contains(normalizeText(text), m.needle)
}

// normalizeText нормализует текст для сравнения:
// - ё->е
// - любые пробельные символы схлопываются в один пробел
// - нижний регистр
func normalizeText(text string) string {
	result := strings.ReplaceAll(text, "ё", "е")
	result = strings.ReplaceAll(result, "Ё", "Е")
	result = spaces.ReplaceAllString(result, " ")
	return strings.ToLower(strings.TrimSpace(result))
}
