// api/names.go
package api

import (
	"strconv"
	"strings"

	"relmodels/internal/models"
)

// NormalizeModelName находит модель по имени из URL: сначала точное совпадение,
// затем регистронезависимое, но только если оно единственное.
func NormalizeModelName(ms *models.Models, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if ms.Model(name) != nil {
		return name, true
	}
	var found string
	for _, n := range ms.Names() {
		if strings.EqualFold(n, name) {
			if found != "" {
				return "", false
			}
			found = n
		}
	}
	return found, found != ""
}

// parseIDParam: целое: серверный id, иначе клиентский
func parseIDParam(raw string) models.ID {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		return models.Persisted(n)
	}
	return models.Local(raw)
}
