package schema

import "fmt"

// SchemaError: некорректное или неоднозначное описание полей; фатально при резолве
type SchemaError struct {
	Model   string
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: %s: %s", e.Model, e.Message)
	}
	return fmt.Sprintf("schema: %s.%s: %s", e.Model, e.Field, e.Message)
}

func schemaErr(model, field, format string, args ...any) error {
	return &SchemaError{Model: model, Field: field, Message: fmt.Sprintf(format, args...)}
}
