package service

import (
	"fmt"
	"regexp"
	"strings"
)

// SanitizeShotDescription заменяет имена персонажей сцены на "Person N" (N - позиция в списке, с 1)
// и удаляет двойные кавычки. Генераторы картинок часто блокируют промпты с именами.
func SanitizeShotDescription(description string, characters []string) string {
	clean := description
	for i, name := range characters {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(name))
		clean = re.ReplaceAllLiteralString(clean, fmt.Sprintf("Person %d", i+1))
	}
	return strings.ReplaceAll(clean, `"`, "")
}
