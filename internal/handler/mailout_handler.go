package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/DmitryTakmakov/mailout-service/internal/model"
	"github.com/DmitryTakmakov/mailout-service/internal/service"
)

type MailoutHandler struct {
	Service  *service.MailoutService
	Validate *validator.Validate
	Log      zerolog.Logger
}

type mailoutRequest struct {
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	FinishesAt  time.Time `json:"finishes_at" validate:"required"`
	Text        string    `json:"text" validate:"max=2500"`
	FilterKind  string    `json:"filter_kind" validate:"required,oneof=tag carrier_prefix"`
	FilterValue string    `json:"filter_value" validate:"required,max=100"`
}

type mailoutPatchRequest struct {
	StartsAt    *time.Time `json:"starts_at"`
	FinishesAt  *time.Time `json:"finishes_at"`
	Text        *string    `json:"text" validate:"omitempty,max=2500"`
	FilterKind  *string    `json:"filter_kind" validate:"omitempty,oneof=tag carrier_prefix"`
	FilterValue *string    `json:"filter_value" validate:"omitempty,max=100"`
}

func (h *MailoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body mailoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.Validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !body.FinishesAt.After(body.StartsAt) {
		respondError(w, http.StatusBadRequest, "finish must occur after start")
		return
	}

	m := &model.Mailout{
		StartsAt:    body.StartsAt,
		FinishesAt:  body.FinishesAt,
		Text:        body.Text,
		FilterKind:  body.FilterKind,
		FilterValue: body.FilterValue,
	}
	if err := h.Service.Create(r.Context(), m); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (h *MailoutHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	summaries, pagination, err := h.Service.List(page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":       summaries,
		"pagination": pagination,
	})
}

func (h *MailoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mailout id")
		return
	}
	detail, err := h.Service.Get(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// Patch applies a partial update; omitted window fields fall back to the
// stored values before the window is re-validated. Any successful patch
// triggers re-fan-out.
func (h *MailoutHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mailout id")
		return
	}

	detail, err := h.Service.Get(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	m := detail.Mailout

	var body mailoutPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.Validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if body.StartsAt != nil {
		m.StartsAt = *body.StartsAt
	}
	if body.FinishesAt != nil {
		m.FinishesAt = *body.FinishesAt
	}
	if body.Text != nil {
		m.Text = *body.Text
	}
	if body.FilterKind != nil {
		m.FilterKind = *body.FilterKind
	}
	if body.FilterValue != nil {
		m.FilterValue = *body.FilterValue
	}

	if !m.FinishesAt.After(m.StartsAt) {
		respondError(w, http.StatusBadRequest, "finish must occur after start")
		return
	}
	if err := h.Service.Update(r.Context(), &m); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &m)
}

func (h *MailoutHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mailout id")
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MailoutHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid delivery id")
		return
	}
	del, err := h.Service.GetDelivery(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, del)
}

func (h *MailoutHandler) DeleteDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid delivery id")
		return
	}
	if err := h.Service.DeleteDelivery(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
