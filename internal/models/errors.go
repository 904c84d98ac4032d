package models

import "fmt"

// RequiredFieldError: обязательное поле отсутствует при создании; запись не создаётся
type RequiredFieldError struct {
	Model string
	Field string
}

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("'%s' field is required when creating '%s' record", e.Field, e.Model)
}

// TypeMismatchError: значение не подходит полю (запись чужой модели, неверный скаляр)
type TypeMismatchError struct {
	Model   string
	Field   string
	Message string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Model, e.Field, e.Message)
}

func mismatch(model, field, format string, args ...any) error {
	return &TypeMismatchError{Model: model, Field: field, Message: fmt.Sprintf(format, args...)}
}

// UnknownRecordError: ссылка на запись, которой нет в хранилище (висячие ссылки запрещены)
type UnknownRecordError struct {
	Model string // модель цели
	ID    ID
	Field string // поле-источник, если есть
}

func (e *UnknownRecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: unknown %s record %s", e.Field, e.Model, e.ID)
	}
	return fmt.Sprintf("unknown %s record %s", e.Model, e.ID)
}

// IndexError: запрос по ключу, для которого индекс не объявлен
type IndexError struct {
	Model string
	Key   string
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("unable to get %s record by '%s'", e.Model, e.Key)
}

type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Model)
}

type UnknownFieldError struct {
	Model string
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %s.%s", e.Model, e.Field)
}
