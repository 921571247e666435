package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/models"
)

// writeJSON writes an envelope with the given status code.
func writeJSON(w http.ResponseWriter, status int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// respondData writes a 200 success envelope.
func respondData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, models.SuccessResponse(data))
}

// respondError maps err onto the envelope. Typed errors carry their own
// status; anything else becomes a sanitized 500.
func respondError(w http.ResponseWriter, logger arbor.ILogger, err error) {
	var appErr *models.Error
	if !errors.As(err, &appErr) {
		logger.Error().Err(err).Msg("Unclassified handler error")
		appErr = models.NewInternalError("")
	}
	writeJSON(w, appErr.Status, models.ErrorResponse(appErr))
}

// respondMethodNotAllowed rejects unsupported verbs on a route.
func respondMethodNotAllowed(w http.ResponseWriter) {
	msg := "Method not allowed"
	writeJSON(w, http.StatusMethodNotAllowed, models.APIResponse{Success: false, Error: &msg})
}

// decodeBody parses the JSON request body into out.
func decodeBody(r *http.Request, out interface{}) *models.Error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(out); err != nil {
		return models.NewValidationError(
			fmt.Sprintf("invalid request body: %s", common.Sanitize(err.Error())), nil)
	}
	return nil
}

// validationError converts validator.ValidationErrors into the
// envelope's meta.fields shape.
func validationError(err error) *models.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return models.NewValidationError(err.Error(), nil)
	}

	fields := make([]models.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, models.FieldError{
			Field:   fieldName(fe),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
			Type:    fe.Tag(),
		})
	}
	return models.NewValidationError("Request body failed validation", fields)
}

// fieldName flattens the validator namespace to the JSON-ish field path
// (StructName.Targets[0].TargetURL -> targets[0].target_url).
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, part := range parts {
		parts[i] = snakeCase(part)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] >= 'a' && s[i-1] <= 'z' {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
