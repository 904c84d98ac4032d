package api

import (
	"errors"
	"net/http"

	"relmodels/internal/models"
	"relmodels/internal/schema"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	ErrRequired      = "required"
	ErrTypeMismatch  = "type_mismatch"
	ErrRefNotFound   = "ref_not_found"
	ErrNotFound      = "not_found"
	ErrIndexMissing  = "index_missing"
	ErrUnknownModel  = "unknown_model"
	ErrUnknownField  = "unknown_field"
	ErrSchemaInvalid = "schema_invalid"
	ErrInvalidBody   = "invalid_body"
)

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

// fromError переводит ошибки хранилища в FieldError
func fromError(err error) FieldError {
	var (
		req *models.RequiredFieldError
		tm  *models.TypeMismatchError
		ur  *models.UnknownRecordError
		ix  *models.IndexError
		um  *models.UnknownModelError
		uf  *models.UnknownFieldError
		se  *schema.SchemaError
	)
	switch {
	case errors.As(err, &req):
		return ferr(ErrRequired, req.Field, err.Error())
	case errors.As(err, &tm):
		return ferr(ErrTypeMismatch, tm.Field, err.Error())
	case errors.As(err, &ur):
		return ferr(ErrRefNotFound, ur.Field, err.Error())
	case errors.As(err, &ix):
		return ferr(ErrIndexMissing, ix.Key, err.Error())
	case errors.As(err, &um):
		return ferr(ErrUnknownModel, "model", err.Error())
	case errors.As(err, &uf):
		return ferr(ErrUnknownField, uf.Field, err.Error())
	case errors.As(err, &se):
		return ferr(ErrSchemaInvalid, se.Field, err.Error())
	}
	return ferr(ErrInvalidBody, "", err.Error())
}

func statusForErrors(errs []FieldError) int {
	for _, e := range errs {
		switch e.Code {
		case ErrRefNotFound:
			return http.StatusConflict
		case ErrUnknownModel, ErrNotFound:
			return http.StatusNotFound
		}
	}
	return http.StatusBadRequest
}
