package enrollment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterChoicesValidation(validate, translator, "enrollment_status", Statuses)
}
