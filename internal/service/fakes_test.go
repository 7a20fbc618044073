package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kasabot/internal/infra"
	"kasabot/internal/model"

	"github.com/stretchr/testify/require"
)

// ── Store ─────────────────────────────────────────────────────────────────────

type memStore struct {
	mu      sync.Mutex
	data    map[string][]model.Kasa
	saves   int
	saveErr error
}

func newMemStore(kasas ...model.Kasa) *memStore {
	s := &memStore{data: make(map[string][]model.Kasa)}
	for _, k := range kasas {
		s.data[k.UserID] = append(s.data[k.UserID], k)
	}
	return s
}

func (s *memStore) LoadAll(context.Context) (map[string][]model.Kasa, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyUsers(s.data), nil
}

func (s *memStore) SaveAll(_ context.Context, users map[string][]model.Kasa) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.data = copyUsers(users)
	return nil
}

func (s *memStore) get(userID string) []model.Kasa {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyUsers(s.data)[userID]
}

func copyUsers(in map[string][]model.Kasa) map[string][]model.Kasa {
	out := make(map[string][]model.Kasa, len(in))
	for u, list := range in {
		for _, k := range list {
			out[u] = append(out[u], k.Clone())
		}
	}
	return out
}

// ── Fiscal API ────────────────────────────────────────────────────────────────

type fakeFiscal struct {
	mu sync.Mutex

	token     string
	signInErr error
	signIns   int
	title     string

	openShift  string
	shifts     map[string]*model.Shift
	shiftIDErr error
	detailErr  error

	receipts   []model.Receipt
	searchErr  error
	receiptErr map[string]error
	docs       map[string][]byte
	reports    map[bool][]model.ReportRef
}

func newFakeFiscal() *fakeFiscal {
	return &fakeFiscal{
		token:      "tok",
		shifts:     make(map[string]*model.Shift),
		receiptErr: make(map[string]error),
		docs:       make(map[string][]byte),
		reports:    make(map[bool][]model.ReportRef),
	}
}

func (f *fakeFiscal) open(id string, serial int64, openedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openShift = id
	f.shifts[id] = &model.Shift{ID: id, Serial: serial, Status: "OPENED", OpenedAt: openedAt.Format(time.RFC3339Nano)}
}

func (f *fakeFiscal) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.shifts[f.openShift]; ok {
		s.Status = "CLOSED"
	}
	f.openShift = ""
}

func (f *fakeFiscal) addReceipt(r model.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, r)
}

func (f *fakeFiscal) set(fn func(f *fakeFiscal)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeFiscal) SignIn(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signIns++
	if f.signInErr != nil {
		return "", f.signInErr
	}
	return f.token, nil
}

func (f *fakeFiscal) CashRegisterTitle(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

func (f *fakeFiscal) CurrentOpenShiftID(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shiftIDErr != nil {
		return "", f.shiftIDErr
	}
	return f.openShift, nil
}

func (f *fakeFiscal) ShiftDetail(_ context.Context, _, _, shiftID string) (*model.Shift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	s, ok := f.shifts[shiftID]
	if !ok {
		return nil, infra.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeFiscal) SearchReceipts(_ context.Context, _, _, _ string, from, to time.Time) ([]model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []model.Receipt
	for _, r := range f.receipts {
		t, ok := r.EffectiveTime()
		if !ok || t.Before(from) || t.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeFiscal) ReceiptDetail(_ context.Context, _, _, receiptID string) (*model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.receiptErr[receiptID]; err != nil {
		return nil, err
	}
	for _, r := range f.receipts {
		if r.ID == receiptID {
			cp := r
			return &cp, nil
		}
	}
	return nil, infra.ErrNotFound
}

func (f *fakeFiscal) ReceiptDocument(_ context.Context, _, _, receiptID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[receiptID]
	if !ok {
		return nil, infra.ErrNotFound
	}
	return doc, nil
}

func (f *fakeFiscal) ReportListing(_ context.Context, _, _ string, closing bool, _ string, _, _ time.Time) ([]model.ReportRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[closing], nil
}

// ── Notifier ──────────────────────────────────────────────────────────────────

type sentDoc struct {
	userID, filename, caption string
}

type recorder struct {
	mu      sync.Mutex
	texts   []string
	docs    []sentDoc
	failAll bool
	textErr error
	docErr  error
}

var errDelivery = errors.New("delivery failed")

func (r *recorder) NotifyText(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errDelivery
	}
	if r.textErr != nil {
		return r.textErr
	}
	r.texts = append(r.texts, text)
	return nil
}

func (r *recorder) NotifyDocument(_ context.Context, userID string, _ []byte, filename, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errDelivery
	}
	if r.docErr != nil {
		return r.docErr
	}
	r.docs = append(r.docs, sentDoc{userID: userID, filename: filename, caption: caption})
	return nil
}

func (r *recorder) sentTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func (r *recorder) sentDocs() []sentDoc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentDoc(nil), r.docs...)
}

func (r *recorder) setErrors(textErr, docErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textErr, r.docErr = textErr, docErr
}

func (r *recorder) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = fail
}

// ── Harness ───────────────────────────────────────────────────────────────────

type harness struct {
	poller   *Poller
	registry *Registry
	store    *memStore
	fiscal   *fakeFiscal
	notes    *recorder
	clock    time.Time
}

func testPollerConfig() PollerConfig {
	return PollerConfig{
		IntervalOpen:   10 * time.Second,
		IntervalClosed: 30 * time.Second,
		ErrorBackoff:   15 * time.Second,
		HistoryFloor:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Location:       time.UTC,
	}
}

func newHarness(t *testing.T, kasas ...model.Kasa) *harness {
	t.Helper()
	h := &harness{
		store:  newMemStore(kasas...),
		fiscal: newFakeFiscal(),
		notes:  &recorder{},
		clock:  base.Add(time.Hour),
	}
	reg, err := LoadRegistry(context.Background(), h.store)
	require.NoError(t, err)
	h.registry = reg
	h.poller = NewPoller(testPollerConfig(), reg, h.fiscal, h.notes)
	h.poller.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) tick(t *testing.T, k model.Kasa) model.ShiftStatus {
	t.Helper()
	status, err := h.poller.Tick(context.Background(), k.ID)
	require.NoError(t, err)
	return status
}

func (h *harness) kasa(t *testing.T, k model.Kasa) model.Kasa {
	t.Helper()
	got, ok := h.registry.Snapshot(k.ID)
	require.True(t, ok)
	return got
}
