// Package service holds the administrative and public operations behind
// the HTTP handlers and the CLI: single issuance, retrieval and
// verification, template administration and spreadsheet intake.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/certificate-issuance/internal/model"
	"github.com/iliyamo/certificate-issuance/internal/render"
	"github.com/iliyamo/certificate-issuance/internal/repository"
)

var (
	// ErrNotFound is returned for unknown or inactive certificates and
	// unknown templates or uploads.
	ErrNotFound = repository.ErrNotFound
	// ErrDuplicateActive means the holder already has an active
	// certificate for the event.
	ErrDuplicateActive = repository.ErrDuplicateActive
	// ErrTooLarge is returned when an uploaded file exceeds its cap.
	ErrTooLarge = errors.New("file exceeds the size limit")
	// ErrUnsupportedFile is returned for an extension the intake refuses.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// ValidationError lists rejected request fields by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Renderer draws a certificate PDF.
type Renderer interface {
	Render(ctx context.Context, cert *model.Certificate, tpl *model.Template, opts render.Options) ([]byte, error)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkStruct runs the validate tags and converts failures into a
// ValidationError keyed by JSON field name.
func checkStruct(v any) *ValidationError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid("body", err.Error())
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "es obligatorio"
	case "len":
		return fmt.Sprintf("debe tener %s caracteres", fe.Param())
	case "numeric":
		return "debe contener solo dígitos"
	case "email":
		return "no es un correo válido"
	case "gt":
		return "debe ser mayor que " + fe.Param()
	case "max":
		return "excede " + fe.Param() + " caracteres"
	}
	return "no es válido"
}
