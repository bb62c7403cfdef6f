package req

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// Имена полей в ошибках берутся из тега form, затем json
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// IsValid валидирует структуру типа T.
func IsValid[T any](payload T) error {
	return validate.Struct(payload)
}

// FailedFields возвращает имена полей, не прошедших правило tag, в порядке объявления.
// Пустой tag означает любое правило.
func FailedFields(err error, tag string) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if tag == "" || fe.Tag() == tag {
			fields = append(fields, fe.Field())
		}
	}
	return fields
}
