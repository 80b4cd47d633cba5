package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("capability", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseCapabilityID(fl.Field().String())
		return ok
	})
	return v
}

// FieldError describes the first field that failed struct validation.
// Path uses JSON field names, e.g. "coordinate.latitude".
type FieldError struct {
	Path  string
	Tag   string
	Param string
}

func (e *FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("field %s failed %s=%s validation", e.Path, e.Tag, e.Param)
	}
	return fmt.Sprintf("field %s failed %s validation", e.Path, e.Tag)
}

// Struct validates v against its `validate` tags. Returns *FieldError for tag failures.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		return &FieldError{Path: path, Tag: fe.Tag(), Param: fe.Param()}
	}
	return err
}
