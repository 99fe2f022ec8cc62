package billing

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterChoicesValidation(validate, translator, "frequency", Frequencies)
	core.RegisterChoicesValidation(validate, translator, "invoice_status", InvoiceStatuses)
	core.RegisterChoicesValidation(validate, translator, "payment_status", PaymentStatuses)
	core.RegisterChoicesValidation(validate, translator, "payment_method", PaymentMethods)
}
