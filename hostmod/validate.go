package hostmod

import (
	stderrors "errors"

	"github.com/go-playground/validator/v10"

	"github.com/wippyai/wasm-hoststate/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// checkStruct validates v's struct tags and reports the first failing
// field as an invalid input error.
func checkStruct(phase errors.Phase, path []string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		full := append(append([]string(nil), path...), fe.Field())
		return errors.New(phase, errors.KindInvalidInput).
			Path(full...).
			Detail("failed %q constraint", fe.Tag()).
			Cause(err).
			Build()
	}
	return errors.Wrap(phase, errors.KindInvalidInput, err, "validation")
}
