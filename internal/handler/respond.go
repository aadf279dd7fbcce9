package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/DmitryTakmakov/mailout-service/internal/errors"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondServiceError maps typed not-found errors to 404 and everything
// else to 500.
func respondServiceError(w http.ResponseWriter, err error) {
	var mailoutNF *appErrors.ErrMailoutNotFound
	var deliveryNF *appErrors.ErrDeliveryNotFound
	var recipientNF *appErrors.ErrRecipientNotFound
	if errors.As(err, &mailoutNF) || errors.As(err, &deliveryNF) || errors.As(err, &recipientNF) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// NewValidator builds the request validator with the custom msisdn rule:
// 11 digits, leading 7.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		if len(p) != 11 || p[0] != '7' {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
		return true
	})
	return v
}
