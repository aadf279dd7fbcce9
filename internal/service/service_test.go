package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DmitryTakmakov/mailout-service/internal/model"
	"github.com/DmitryTakmakov/mailout-service/internal/scheduler"
	"github.com/DmitryTakmakov/mailout-service/internal/service"
)

// In-memory fakes satisfying the repository interfaces, in the spirit of
// the hand-rolled mocks the rest of the codebase tests with.

type fakeMailoutRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]model.Mailout
}

func newFakeMailoutRepo() *fakeMailoutRepo {
	return &fakeMailoutRepo{items: make(map[int]model.Mailout)}
}

func (r *fakeMailoutRepo) Create(m *model.Mailout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	m.ID = r.seq
	m.CreatedAt = time.Now()
	r.items[m.ID] = *m
	return nil
}

func (r *fakeMailoutRepo) Update(m *model.Mailout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[m.ID] = *m
	return nil
}

func (r *fakeMailoutRepo) GetByID(id int) (*model.Mailout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := m
	return &cp, nil
}

func (r *fakeMailoutRepo) List(offset, limit int) ([]*model.Mailout, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*model.Mailout, 0, len(r.items))
	for id := range r.items {
		m := r.items[id]
		all = append(all, &m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].FinishesAt.After(all[j].FinishesAt) })
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

func (r *fakeMailoutRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

type fakeRecipientRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]model.Recipient
}

func newFakeRecipientRepo() *fakeRecipientRepo {
	return &fakeRecipientRepo{items: make(map[int]model.Recipient)}
}

func (r *fakeRecipientRepo) Create(rec *model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec.ID = r.seq
	r.items[rec.ID] = *rec
	return nil
}

func (r *fakeRecipientRepo) Update(rec *model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[rec.ID] = *rec
	return nil
}

func (r *fakeRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

func (r *fakeRecipientRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeRecipientRepo) FindByTag(tag string) ([]model.Recipient, error) {
	return r.filter(func(rec model.Recipient) bool { return rec.Tag == tag })
}

func (r *fakeRecipientRepo) FindByCarrierPrefix(prefix string) ([]model.Recipient, error) {
	return r.filter(func(rec model.Recipient) bool { return rec.CarrierPrefix == prefix })
}

func (r *fakeRecipientRepo) filter(keep func(model.Recipient) bool) ([]model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Recipient{}
	ids := make([]int, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if keep(r.items[id]) {
			out = append(out, r.items[id])
		}
	}
	return out, nil
}

type fakeDeliveryRepo struct {
	mu       sync.Mutex
	seq      int
	items    map[int]model.Delivery
	mailouts *fakeMailoutRepo

	// afterList, when set, runs once after the next ListByMailout returns
	// its snapshot. Lets a test interleave work between a caller's listing
	// and its follow-up writes.
	afterList func()
}

func newFakeDeliveryRepo(mailouts *fakeMailoutRepo) *fakeDeliveryRepo {
	return &fakeDeliveryRepo{items: make(map[int]model.Delivery), mailouts: mailouts}
}

func (r *fakeDeliveryRepo) Create(d *model.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	d.ID = r.seq
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = model.StatusPending
	}
	r.items[d.ID] = *d
	return nil
}

func (r *fakeDeliveryRepo) GetByID(id int) (*model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := d
	return &cp, nil
}

func (r *fakeDeliveryRepo) GetByTaskHandle(handle string) (*model.Delivery, error) {
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

func (r *fakeDeliveryRepo) ListByMailout(mailoutID int) ([]model.Delivery, error) {
	r.mu.Lock()
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
	hook := r.afterList
	r.afterList = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *fakeDeliveryRepo) SetTaskHandle(id int, handle, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return fmt.Errorf("delivery %d missing", id)
	}
	d.TaskHandle = handle
	d.Status = status
	d.UpdatedAt = time.Now()
	r.items[id] = d
	return nil
}

func (r *fakeDeliveryRepo) UpdateStatus(id int, status string, sentAt *time.Time) error {
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
	d.UpdatedAt = time.Now()
	r.items[id] = d
	return nil
}

func (r *fakeDeliveryRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeDeliveryRepo) CountByStatus(mailoutID int) (map[string]int, error) {
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

func (r *fakeDeliveryRepo) ExpireOverdue(now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, d := range r.items {
		if d.Status != model.StatusPending && d.Status != model.StatusRetry {
			continue
		}
		m, _ := r.mailouts.GetByID(d.MailoutID)
		if m == nil || !m.FinishesAt.Before(now) {
			continue
		}
		d.Status = model.StatusFailure
		r.items[id] = d
		n++
	}
	return n, nil
}

// fakeScheduler records submissions and revocations instead of executing.
type fakeScheduler struct {
	mu          sync.Mutex
	seq         int
	submissions []scheduler.Submission
	revoked     []string
}

func (s *fakeScheduler) Submit(_ context.Context, sub scheduler.Submission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.Handle == "" {
		s.seq++
		sub.Handle = fmt.Sprintf("task-%d", s.seq)
	}
	s.submissions = append(s.submissions, sub)
	return sub.Handle, nil
}

func (s *fakeScheduler) Revoke(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = append(s.revoked, handle)
	return nil
}

func (s *fakeScheduler) lastSubmission() scheduler.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions[len(s.submissions)-1]
}

func (s *fakeScheduler) submissionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submissions)
}

func (s *fakeScheduler) revokedHandles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

// env wires the whole service core over the fakes with a controllable clock.
type env struct {
	mailouts   *fakeMailoutRepo
	recipients *fakeRecipientRepo
	deliveries *fakeDeliveryRepo
	sched      *fakeScheduler

	fanout     *service.Fanout
	reconciler *service.Reconciler
	sweeper    *service.Sweeper
	svc        *service.MailoutService

	mu  sync.Mutex
	now time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		mailouts:   newFakeMailoutRepo(),
		recipients: newFakeRecipientRepo(),
		sched:      &fakeScheduler{},
		now:        time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
	e.deliveries = newFakeDeliveryRepo(e.mailouts)

	log := zerolog.Nop()
	locks := service.NewDeliveryLocks()
	dispatcher := &service.Dispatcher{Deliveries: e.deliveries, Scheduler: e.sched, Log: log}
	e.fanout = &service.Fanout{
		Recipients: e.recipients,
		Deliveries: e.deliveries,
		Dispatcher: dispatcher,
		Scheduler:  e.sched,
		Locks:      locks,
		Log:        log,
	}
	e.reconciler = &service.Reconciler{
		Deliveries: e.deliveries,
		Mailouts:   e.mailouts,
		Recipients: e.recipients,
		Dispatcher: dispatcher,
		Locks:      locks,
		Log:        log,
		Now:        e.clock,
	}
	e.sweeper = &service.Sweeper{Deliveries: e.deliveries, Log: log, Now: e.clock}
	e.svc = &service.MailoutService{
		Mailouts:   e.mailouts,
		Deliveries: e.deliveries,
		Scheduler:  e.sched,
		Fanout:     e.fanout,
		Log:        log,
	}
	return e
}

func (e *env) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *env) setNow(t time.Time) {
	e.mu.Lock()
	e.now = t
	e.mu.Unlock()
}

func (e *env) addRecipient(t *testing.T, phone, tag string) model.Recipient {
	t.Helper()
	rec := model.Recipient{
		Phone:         phone,
		CarrierPrefix: phone[1:4],
		Tag:           tag,
		Timezone:      "UTC",
	}
	if err := e.recipients.Create(&rec); err != nil {
		t.Fatalf("create recipient: %v", err)
	}
	return rec
}
