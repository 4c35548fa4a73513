package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	taxid "github.com/nkiryanov/bufete/internal/service/validate"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("nif", validateNIF)
	validate.RegisterTagNameFunc(useJSONTagNames)
	validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
}

// Validate decimals as numbers, so 'gt', 'gte' and 'lte' tags compare amounts
func decimalValue(v reflect.Value) any {
	d, ok := v.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	f, _ := d.Float64()
	return f
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Spanish tax id; separators and case are ignored
func validateNIF(fl validator.FieldLevel) bool {
	return taxid.NIF(taxid.NormalizeTaxID(fl.Field().String())) == nil
}
