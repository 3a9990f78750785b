package main

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"ultrashots/pkg/exceptions"
	"ultrashots/pkg/inertia"
	"ultrashots/pkg/session"
)

var validationOnce sync.Once

// registerValidation makes validation errors report json field names.
func registerValidation() {
	validationOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
}

// validationErrors maps a binding error to field messages.
func validationErrors(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"form": "The given data was invalid."}
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", field)
	case "url":
		return fmt.Sprintf("The %s field must be a valid URL.", field)
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", field, fe.Param())
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", field, fe.Param())
	case "gte":
		return fmt.Sprintf("The %s field must be at least %s.", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("The %s field must match the format %s.", field, fe.Param())
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}

// invalid answers a failed form: 422 with the errors for JSON clients, otherwise the
// errors are flashed and the user is sent back to the form.
func (a *App) invalid(c *gin.Context, errs map[string]string) {
	if exceptions.WantsJSON(c.Request) {
		msg := "The given data was invalid."
		if keys := slices.Sorted(maps.Keys(errs)); len(keys) > 0 {
			msg = errs[keys[0]]
		}
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"message": msg, "errors": errs})
		return
	}
	session.FlashErrors(c, errs)
	inertia.Back(c)
}
