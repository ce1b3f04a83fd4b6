package badge

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/elimuhq/darasa/core"
)

var (
	criteriaTag  = "badgecriteria"
	criteriaText = "invalid badge criteria"
)

// InitValidators registers this package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(criteriaTag, criteriaValidation)
	core.RegisterCustomTranslation(validate, translator, criteriaTag, criteriaText)
}

// criteriaValidation checks that the provided criteria is in AllCriteria;
// unrecognized values are never created.
func criteriaValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, c := range AllCriteria {
		if val == c {
			return true
		}
	}
	return false
}
