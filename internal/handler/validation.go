package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/boddenberg/bankcards-api/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// Decimals and year-months are validated through their string forms.
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		if d, ok := f.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		if ym, ok := f.Interface().(domain.YearMonth); ok {
			return ym.String()
		}
		return nil
	}, domain.YearMonth{})

	v.RegisterValidation("cardnumber", func(fl validator.FieldLevel) bool {
		return domain.ValidCardNumber(fl.Field().String())
	})
	v.RegisterValidation("intpos", integerAmount(func(d decimal.Decimal) bool { return d.IsPositive() }))
	v.RegisterValidation("intnonneg", integerAmount(func(d decimal.Decimal) bool { return !d.IsNegative() }))
	return v
}

func integerAmount(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsInteger() && ok(d)
	}
}

// validateStruct runs tag validation and converts failures into a domain validation error.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &domain.ErrValidation{Field: "body", Message: err.Error()}
	}

	details := make([]domain.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, domain.FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return &domain.ErrValidation{Field: details[0].Field, Message: details[0].Message, Details: details}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "len":
		return fe.Field() + " must be exactly " + fe.Param() + " characters"
	case "cardnumber":
		return fe.Field() + " must be exactly 16 digits"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "intpos":
		return fe.Field() + " must be a positive integer"
	case "intnonneg":
		return fe.Field() + " must be a non-negative integer"
	default:
		return fe.Field() + " is invalid"
	}
}
