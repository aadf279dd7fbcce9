package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	appErrors "github.com/DmitryTakmakov/mailout-service/internal/errors"
	"github.com/DmitryTakmakov/mailout-service/internal/model"
	"github.com/DmitryTakmakov/mailout-service/internal/repository"
)

// RecipientHandler serves the recipient directory CRUD. The directory is
// read-only for the dispatch core; these endpoints are the only writers.
type RecipientHandler struct {
	Repo     repository.RecipientRepositoryInterface
	Validate *validator.Validate
	Log      zerolog.Logger
}

type recipientRequest struct {
	Phone         string `json:"phone" validate:"required,msisdn"`
	CarrierPrefix string `json:"carrier_prefix" validate:"required,len=3"`
	Tag           string `json:"tag" validate:"required,max=100"`
	Timezone      string `json:"timezone" validate:"omitempty,max=32"`
}

type recipientPatchRequest struct {
	Phone         *string `json:"phone"`
	CarrierPrefix *string `json:"carrier_prefix"`
	Tag           *string `json:"tag" validate:"omitempty,max=100"`
	Timezone      *string `json:"timezone" validate:"omitempty,max=32"`
}

func (h *RecipientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.Validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := model.ValidatePhone(body.Phone, body.CarrierPrefix); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := &model.Recipient{
		Phone:         body.Phone,
		CarrierPrefix: body.CarrierPrefix,
		Tag:           body.Tag,
		Timezone:      body.Timezone,
	}
	if rec.Timezone == "" {
		rec.Timezone = "UTC"
	}
	if err := h.Repo.Create(rec); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

// Patch applies a partial update. Fields left out keep their stored values;
// the phone/prefix pair is re-validated as a whole, so changing one side to
// something inconsistent with the other is rejected.
func (h *RecipientHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid recipient id")
		return
	}

	rec, err := h.Repo.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		respondServiceError(w, appErrors.NewRecipientNotFound(id))
		return
	}

	var body recipientPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.Validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if body.Phone != nil {
		rec.Phone = *body.Phone
	}
	if body.CarrierPrefix != nil {
		rec.CarrierPrefix = *body.CarrierPrefix
	}
	if body.Tag != nil {
		rec.Tag = *body.Tag
	}
	if body.Timezone != nil {
		rec.Timezone = *body.Timezone
	}

	if err := model.ValidatePhone(rec.Phone, rec.CarrierPrefix); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Repo.Update(rec); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *RecipientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid recipient id")
		return
	}

	rec, err := h.Repo.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		respondServiceError(w, appErrors.NewRecipientNotFound(id))
		return
	}
	if err := h.Repo.Delete(id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
