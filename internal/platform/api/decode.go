package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON reads up to maxRequestBodyBytes from r.Body, decodes JSON into
// dst and validates its struct tags. On failure it writes a 400 response and
// returns false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(dst); err != nil {
		BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		BadRequest(w, "VALIDATION_FAILED", "Invalid request body", rid, validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return map[string]any{"fields": fields}
}
