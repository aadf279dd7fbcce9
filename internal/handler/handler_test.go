package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/DmitryTakmakov/mailout-service/internal/handler"
	"github.com/DmitryTakmakov/mailout-service/internal/model"
	"github.com/DmitryTakmakov/mailout-service/internal/scheduler"
	"github.com/DmitryTakmakov/mailout-service/internal/service"
)

// Map-backed repository stubs for exercising the HTTP surface without a
// database.

type stubMailoutRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]model.Mailout
}

func (r *stubMailoutRepo) Create(m *model.Mailout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	m.ID = r.seq
	m.CreatedAt = time.Now()
	r.items[m.ID] = *m
	return nil
}

func (r *stubMailoutRepo) Update(m *model.Mailout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[m.ID] = *m
	return nil
}

func (r *stubMailoutRepo) GetByID(id int) (*model.Mailout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := m
	return &cp, nil
}

func (r *stubMailoutRepo) List(offset, limit int) ([]*model.Mailout, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*model.Mailout, 0, len(r.items))
	for id := range r.items {
		m := r.items[id]
		all = append(all, &m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return []*model.Mailout{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *stubMailoutRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

type stubRecipientRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]model.Recipient
}

func (r *stubRecipientRepo) Create(rec *model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec.ID = r.seq
	r.items[rec.ID] = *rec
	return nil
}

func (r *stubRecipientRepo) Update(rec *model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[rec.ID] = *rec
	return nil
}

func (r *stubRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

func (r *stubRecipientRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *stubRecipientRepo) FindByTag(tag string) ([]model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Recipient{}
	for _, rec := range r.items {
		if rec.Tag == tag {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *stubRecipientRepo) FindByCarrierPrefix(prefix string) ([]model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Recipient{}
	for _, rec := range r.items {
		if rec.CarrierPrefix == prefix {
			out = append(out, rec)
		}
	}
	return out, nil
}

type stubDeliveryRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]model.Delivery
}

func (r *stubDeliveryRepo) Create(d *model.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	d.ID = r.seq
	if d.Status == "" {
		d.Status = model.StatusPending
	}
	r.items[d.ID] = *d
	return nil
}

func (r *stubDeliveryRepo) GetByID(id int) (*model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := d
	return &cp, nil
}

func (r *stubDeliveryRepo) GetByTaskHandle(handle string) (*model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.Delivery
	for id := range r.items {
		d := r.items[id]
		if d.TaskHandle == handle && (found == nil || d.ID > found.ID) {
			cp := d
			found = &cp
		}
	}
	return found, nil
}

func (r *stubDeliveryRepo) ListByMailout(mailoutID int) ([]model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Delivery{}
	ids := make([]int, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if r.items[id].MailoutID == mailoutID {
			out = append(out, r.items[id])
		}
	}
	return out, nil
}

func (r *stubDeliveryRepo) SetTaskHandle(id int, handle, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return fmt.Errorf("delivery %d missing", id)
	}
	d.TaskHandle = handle
	d.Status = status
	r.items[id] = d
	return nil
}

func (r *stubDeliveryRepo) UpdateStatus(id int, status string, sentAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return fmt.Errorf("delivery %d missing", id)
	}
	d.Status = status
	if sentAt != nil {
		d.SentAt = sentAt
	}
	r.items[id] = d
	return nil
}

func (r *stubDeliveryRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *stubDeliveryRepo) CountByStatus(mailoutID int) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{
		model.StatusPending: 0,
		model.StatusRetry:   0,
		model.StatusSuccess: 0,
		model.StatusFailure: 0,
		model.StatusRevoked: 0,
	}
	for _, d := range r.items {
		if d.MailoutID == mailoutID {
			stats[d.Status]++
		}
	}
	return stats, nil
}

func (r *stubDeliveryRepo) ExpireOverdue(time.Time) (int64, error) { return 0, nil }

type noopScheduler struct {
	mu  sync.Mutex
	seq int
}

func (s *noopScheduler) Submit(_ context.Context, sub scheduler.Submission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.Handle != "" {
		return sub.Handle, nil
	}
	s.seq++
	return fmt.Sprintf("task-%d", s.seq), nil
}

func (s *noopScheduler) Revoke(context.Context, string) error { return nil }

// testApp wires the handlers over the stubs behind the same routes the
// server binary registers.
type testApp struct {
	router     *chi.Mux
	recipients *stubRecipientRepo
	deliveries *stubDeliveryRepo
	mailouts   *stubMailoutRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zerolog.Nop()
	mailouts := &stubMailoutRepo{items: make(map[int]model.Mailout)}
	recipients := &stubRecipientRepo{items: make(map[int]model.Recipient)}
	deliveries := &stubDeliveryRepo{items: make(map[int]model.Delivery)}
	sched := &noopScheduler{}
	locks := service.NewDeliveryLocks()

	dispatcher := &service.Dispatcher{Deliveries: deliveries, Scheduler: sched, Log: log}
	fanout := &service.Fanout{
		Recipients: recipients,
		Deliveries: deliveries,
		Dispatcher: dispatcher,
		Scheduler:  sched,
		Locks:      locks,
		Log:        log,
	}
	svc := &service.MailoutService{
		Mailouts:   mailouts,
		Deliveries: deliveries,
		Scheduler:  sched,
		Fanout:     fanout,
		Log:        log,
	}

	validate := handler.NewValidator()
	recipientHandler := &handler.RecipientHandler{Repo: recipients, Validate: validate, Log: log}
	mailoutHandler := &handler.MailoutHandler{Service: svc, Validate: validate, Log: log}

	r := chi.NewRouter()
	r.Post("/recipients", recipientHandler.Create)
	r.Patch("/recipients/{id}", recipientHandler.Patch)
	r.Delete("/recipients/{id}", recipientHandler.Delete)
	r.Post("/mailouts", mailoutHandler.Create)
	r.Get("/mailouts", mailoutHandler.List)
	r.Get("/mailouts/{id}", mailoutHandler.Get)
	r.Patch("/mailouts/{id}", mailoutHandler.Patch)
	r.Delete("/mailouts/{id}", mailoutHandler.Delete)
	r.Get("/deliveries/{id}", mailoutHandler.GetDelivery)
	r.Delete("/deliveries/{id}", mailoutHandler.DeleteDelivery)

	return &testApp{router: r, recipients: recipients, deliveries: deliveries, mailouts: mailouts}
}

func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}
