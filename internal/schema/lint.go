package schema

import "fmt"

type Issue struct {
	Model   string `json:"model"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Lint проверяет противоречия, которые не мешают работе, но почти наверняка ошибочны.
func (s *Schema) Lint() []Issue {
	var issues []Issue
	for _, name := range s.order {
		for _, f := range s.models[name].fields {
			a := f.Attrs()

			// required x2many: create не сможет проверить пустой список
			if r, ok := f.(Relational); ok && r.IsMany() && a.Required {
				issues = append(issues, Issue{
					Model:   name,
					Field:   f.Name(),
					Code:    "required_x2many",
					Message: "required is not enforced on one2many/many2many fields",
				})
			}
			// computed/related поле не задаётся вызывающим
			if a.Required && (a.Computed || a.Related) {
				issues = append(issues, Issue{
					Model:   name,
					Field:   f.Name(),
					Code:    "required_conflicts_compute",
					Message: "computed or related field cannot be required",
				})
			}
			if a.Local && a.Unique {
				issues = append(issues, Issue{
					Model:   name,
					Field:   f.Name(),
					Code:    "unique_local",
					Message: "unique index on a client-local field is not checked by the backend",
				})
			}
			if mm, ok := f.(*Many2Many); ok && !a.Synthetic && mm.Inverse != nil && mm.Inverse.attrs.Synthetic && mm.Table == "" {
				issues = append(issues, Issue{
					Model:   name,
					Field:   f.Name(),
					Code:    "many2many_no_table",
					Message: fmt.Sprintf("many2many to %s has no relation_table and no declared inverse", mm.Target),
				})
			}
		}
	}
	return issues
}
