package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"spendwise/internal/core"
)

const maxBodyBytes = 1 << 20

// predictItem is the wire form of one prediction input. Description is a
// pointer so a missing key is rejected while "" is accepted.
type predictItem struct {
	Description *string  `json:"description" validate:"required,max=500"`
	Amount      *float64 `json:"amount"`
	Merchant    *string  `json:"merchant" validate:"omitempty,max=200"`
}

func (it predictItem) input() core.ClassificationInput {
	return core.ClassificationInput{Description: *it.Description, Amount: it.Amount, Merchant: it.Merchant}
}

type predictBatch struct {
	Items []predictItem `json:"items" validate:"max=1000,dive"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodePredictRequest reads a JSON array of inputs. A non-zero status means
// the request was rejected with detail as the reason.
func (s *Server) decodePredictRequest(w http.ResponseWriter, r *http.Request) (_ []core.ClassificationInput, status int, detail string) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))

	var items []predictItem
	if err := dec.Decode(&items); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return nil, http.StatusBadRequest, "request body must be a JSON array"
		default:
			return nil, http.StatusBadRequest, "invalid JSON: " + err.Error()
		}
	}
	if dec.More() {
		return nil, http.StatusBadRequest, "invalid JSON: unexpected data after the array"
	}
	if items == nil {
		return nil, http.StatusBadRequest, "request body must be a JSON array"
	}

	if err := s.validate.Struct(predictBatch{Items: items}); err != nil {
		return nil, http.StatusUnprocessableEntity, validationDetail(err)
	}
	return lo.Map(items, func(it predictItem, _ int) core.ClassificationInput { return it.input() }), 0, ""
}

// validationDetail renders validator errors as "body[3].description: ...",
// one per failing field.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	return strings.Join(lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		return fieldLocation(fe) + ": " + fieldMessage(fe)
	}), "; ")
}

func fieldLocation(fe validator.FieldError) string {
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	return "body" + strings.TrimPrefix(path, "items")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
