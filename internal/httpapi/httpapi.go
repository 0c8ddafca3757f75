// Package httpapi holds the JSON response and request validation helpers
// shared by the HTTP handlers.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/aristath/sectorbl/internal/engine"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Error kinds that do not come from the engine.
const (
	KindUnavailable = "unavailable"
	KindRateLimited = "rate_limited"
	KindInternal    = "internal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names in messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorBody is the error envelope of every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure kind and a human readable message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WriteJSON writes data with the given status.
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(ErrorBody{Error: ErrorDetail{Kind: KindInternal, Message: "failed to encode response"}})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, log zerolog.Logger, status int, kind, message string) {
	WriteJSON(w, log, status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: message}})
}

// Status maps an error to its HTTP status and kind. Engine errors are client
// errors; anything else is internal.
func Status(err error) (int, string) {
	if kind, ok := engine.KindOf(err); ok {
		return http.StatusBadRequest, string(kind)
	}
	return http.StatusInternalServerError, KindInternal
}

// Detail maps err to its status and error detail. Internal errors are
// logged and their message is not exposed.
func Detail(log zerolog.Logger, err error) (int, ErrorDetail) {
	status, kind := Status(err)
	msg := err.Error()
	var e *engine.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		msg = "internal error"
	}
	return status, ErrorDetail{Kind: kind, Message: msg}
}

// WriteEngineError writes err using Detail.
func WriteEngineError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, detail := Detail(log, err)
	WriteJSON(w, log, status, ErrorBody{Error: detail})
}

// Decode reads a JSON body into v and validates it. The returned error is
// always an invalid_request engine error.
func Decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return engine.InvalidRequest("malformed JSON body: %v", err)
	}
	return Validate(v)
}

// Validate runs struct validation and folds the failures into one
// invalid_request error.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return engine.InvalidRequest("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return engine.InvalidRequest("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
