package core

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "only alphanumeric characters and underscores are allowed"
	alphaNumUnderRegex = regexp.MustCompile(`^\w+$`)

	dateTag  = "ymd"
	dateText = "date must be formatted as YYYY-MM-DD"

	clockTag  = "hhmm"
	clockText = "time must be formatted as HH:MM"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, alphaNumUnderText)

	_ = validate.RegisterValidation(dateTag, layoutValidation(DateLayout))
	RegisterCustomTranslation(validate, translator, dateTag, dateText)

	_ = validate.RegisterValidation(clockTag, layoutValidation(ClockLayout))
	RegisterCustomTranslation(validate, translator, clockTag, clockText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// RegisterChoicesValidation registers `tag` as a validator only accepting one of choices.
func RegisterChoicesValidation(validate *validator.Validate, translator ut.Translator, tag string, choices []string) {
	_ = validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return ContainsString(choices, fl.Field().String())
	})
	RegisterCustomTranslation(validate, translator, tag, fmt.Sprintf("must be one of: %s", strings.Join(choices, ", ")))
}

// TranslateValidationErrors maps validator errors to {json field: message}.
func TranslateValidationErrors(vErrs validator.ValidationErrors, translator ut.Translator) map[string]string {
	fldErrs := make(map[string]string, len(vErrs))
	for _, vErr := range vErrs {
		fldErrs[vErr.Field()] = vErr.Translate(translator)
	}
	return fldErrs
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

func layoutValidation(layout string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		_, err := time.Parse(layout, fl.Field().String())
		return err == nil
	}
}
