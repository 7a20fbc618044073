package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"kasabot/internal/infra"
	"kasabot/internal/model"
	"kasabot/internal/notify"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FiscalClient is the subset of the fiscal API the poller and the
// registration flow consume.
type FiscalClient interface {
	SignIn(ctx context.Context, licenseKey, pin string) (string, error)
	CashRegisterTitle(ctx context.Context, licenseKey, token string) (string, error)
	CurrentOpenShiftID(ctx context.Context, licenseKey, token string) (string, error)
	ShiftDetail(ctx context.Context, licenseKey, token, shiftID string) (*model.Shift, error)
	SearchReceipts(ctx context.Context, licenseKey, token, shiftID string, from, to time.Time) ([]model.Receipt, error)
	ReceiptDetail(ctx context.Context, licenseKey, token, receiptID string) (*model.Receipt, error)
	ReceiptDocument(ctx context.Context, licenseKey, token, receiptID string) ([]byte, error)
	ReportListing(ctx context.Context, licenseKey, token string, closing bool, shiftID string, from, to time.Time) ([]model.ReportRef, error)
}

// Notifier delivers messages to the owning user.
type Notifier interface {
	NotifyText(ctx context.Context, userID, text string) error
	NotifyDocument(ctx context.Context, userID string, doc []byte, filename, caption string) error
}

// DocumentArchive keeps copies of fetched documents.
type DocumentArchive interface {
	Store(ctx context.Context, kasaID, shiftID, name string, doc []byte) error
}

// SummaryRenderer turns a shift summary into a PDF.
type SummaryRenderer func(doc infra.SummaryDocument) ([]byte, error)

// errNoSession aborts a tick when no cashier token could be obtained.
var errNoSession = errors.New("no cashier session")

// PollerConfig holds the polling cadence and delivery switches.
type PollerConfig struct {
	IntervalOpen   time.Duration
	IntervalClosed time.Duration
	ErrorBackoff   time.Duration
	// HistoryFloor bounds the scan used to seed an absent watermark.
	HistoryFloor   time.Time
	SendReports    bool
	SendSummaryPDF bool
	Location       *time.Location
}

// Poller runs one supervised polling loop per kasa.
type Poller struct {
	cfg      PollerConfig
	registry *Registry
	client   FiscalClient
	notifier Notifier
	archive  DocumentArchive
	render   SummaryRenderer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	baseCtx context.Context
	running map[uuid.UUID]bool
	resets  map[uuid.UUID]bool
	wg      sync.WaitGroup
}

func NewPoller(cfg PollerConfig, registry *Registry, client FiscalClient, notifier Notifier) *Poller {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Poller{
		cfg:      cfg,
		registry: registry,
		client:   client,
		notifier: notifier,
		now:      time.Now,
		sleep:    sleepCtx,
		baseCtx:  context.Background(),
		running:  make(map[uuid.UUID]bool),
		resets:   make(map[uuid.UUID]bool),
	}
}

// WithArchive enables the document archive.
func (p *Poller) WithArchive(a DocumentArchive) *Poller {
	p.archive = a
	return p
}

// WithSummaryRenderer enables the shift summary PDF.
func (p *Poller) WithSummaryRenderer(r SummaryRenderer) *Poller {
	p.render = r
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ── Supervision ──────────────────────────────────────────────────────────────

// Start binds the loops to ctx; they all stop when it is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.baseCtx = ctx
	p.mu.Unlock()
}

// StartAll starts a loop for every registered kasa not already polled.
func (p *Poller) StartAll() int {
	started := 0
	for _, userID := range p.registry.Users() {
		started += p.StartUser(userID, false)
	}
	return started
}

// StartUser starts loops for the user's kasas that are not running. With
// reset, each kasa's next tick announces an open shift again even when it is
// already tracked; shift tracking and receipt watermarks are kept, so a close
// that happened meanwhile is still reconciled.
func (p *Poller) StartUser(userID string, reset bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := 0
	for _, k := range p.registry.List(userID) {
		if reset {
			p.resets[k.ID] = true
		}
		if p.running[k.ID] {
			continue
		}
		p.running[k.ID] = true
		started++
		p.wg.Add(1)
		go p.run(p.baseCtx, k.ID)
	}
	return started
}

// IsRunning reports whether the kasa has a live loop.
func (p *Poller) IsRunning(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[id]
}

// Wait blocks until every loop has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) takeReset(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	reset := p.resets[id]
	delete(p.resets, id)
	return reset
}

// keepReset puts back a reset the tick could not act on.
func (p *Poller) keepReset(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets[id] = true
}

func (p *Poller) run(ctx context.Context, id uuid.UUID) {
	defer func() {
		p.mu.Lock()
		delete(p.running, id)
		p.mu.Unlock()
		p.wg.Done()
	}()

	logger := log.With().Str("kasa", id.String()).Logger()
	if _, err := p.registry.Update(ctx, id, func(k *model.Kasa) { k.StartedAt = p.now() }); err != nil {
		if errors.Is(err, ErrKasaNotFound) {
			return
		}
		logger.Warn().Err(err).Msg("poller: persist failed")
	}
	logger.Info().Msg("poller: loop started")

	for {
		status, err := p.safeTick(ctx, id)
		delay := p.delayFor(status)
		switch {
		case errors.Is(err, ErrKasaNotFound):
			logger.Info().Msg("poller: kasa removed, loop stopped")
			return
		case errors.Is(err, errNoSession):
			logger.Warn().Err(err).Msg("poller: sign in failed")
			delay = p.cfg.IntervalClosed
		case err != nil:
			logger.Error().Err(err).Msg("poller: tick failed")
			delay = p.cfg.ErrorBackoff
		}

		if err := p.sleep(ctx, delay); err != nil {
			logger.Info().Msg("poller: loop stopped")
			return
		}
	}
}

func (p *Poller) delayFor(status model.ShiftStatus) time.Duration {
	switch status {
	case model.StatusOpened:
		return p.cfg.IntervalOpen
	case model.StatusClosed:
		return p.cfg.IntervalClosed
	default:
		return p.cfg.ErrorBackoff
	}
}

// safeTick turns a panic inside a tick into an error.
func (p *Poller) safeTick(ctx context.Context, id uuid.UUID) (status model.ShiftStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("kasa", id.String()).Bytes("stack", debug.Stack()).Msg("poller: tick panicked")
			status, err = model.StatusUnknown, fmt.Errorf("tick panic: %v", r)
		}
	}()
	return p.Tick(ctx, id)
}

// ── Tick ─────────────────────────────────────────────────────────────────────

// Tick runs one reconciliation pass for a kasa and persists the result. It
// returns the observed status; StatusUnknown means the remote state could not
// be read this time.
func (p *Poller) Tick(ctx context.Context, id uuid.UUID) (model.ShiftStatus, error) {
	k, ok := p.registry.Snapshot(id)
	if !ok {
		return model.StatusUnknown, ErrKasaNotFound
	}
	logger := log.With().Str("kasa", k.DisplayName()).Str("user_id", k.UserID).Logger()
	ctx = logger.WithContext(ctx)

	reannounce := p.takeReset(id)
	status, tickErr := p.reconcile(ctx, &k, reannounce)

	if err := p.registry.Commit(ctx, k); err != nil {
		if errors.Is(err, ErrKasaNotFound) {
			return status, err
		}
		logger.Error().Err(err).Msg("poller: persist failed, retrying on next tick")
	}
	return status, tickErr
}

func (p *Poller) reconcile(ctx context.Context, k *model.Kasa, reannounce bool) (model.ShiftStatus, error) {
	logger := zerolog.Ctx(ctx)

	if err := p.ensureSession(ctx, k); err != nil {
		return model.StatusUnknown, err
	}

	prev := k.PreviousStatus()
	current, shiftID, shift := p.observe(ctx, k)
	if current == model.StatusUnknown {
		if reannounce {
			p.keepReset(k.ID)
		}
		return current, nil
	}

	switch {
	case prev != model.StatusOpened && current == model.StatusOpened:
		p.openShift(ctx, k, shiftID, shift)
	case prev == model.StatusOpened && current != model.StatusOpened:
		p.closeShift(ctx, k)
	case prev == model.StatusOpened && k.ShiftID != "" && shiftID != k.ShiftID:
		logger.Info().Str("old_shift", k.ShiftID).Str("shift_id", shiftID).Msg("poller: shift replaced between ticks")
		p.closeShift(ctx, k)
		p.openShift(ctx, k, shiftID, shift)
	case reannounce && current == model.StatusOpened:
		if k.ShiftID == "" {
			k.ShiftID = shiftID
			k.ShiftClosed = false
		}
		p.announceOpen(ctx, k)
	case prev == model.StatusOpened && k.ShiftID == "":
		// resumed without a tracked id
		k.ShiftID = shiftID
		k.ShiftClosed = false
	}
	k.LastStatus = current

	if current == model.StatusOpened {
		if err := p.dispatchReceipts(ctx, k); err != nil {
			return current, err
		}
	}
	return current, nil
}

// ensureSession signs in when the kasa has no cashier token.
func (p *Poller) ensureSession(ctx context.Context, k *model.Kasa) error {
	if k.Token != "" {
		return nil
	}
	token, err := p.client.SignIn(ctx, k.LicenseKey, k.PinCode)
	if err != nil {
		return fmt.Errorf("%w: %v", errNoSession, err)
	}
	k.Token = token
	return nil
}

// dropSessionOn clears the token when the API rejected it.
func dropSessionOn(k *model.Kasa, err error) {
	if errors.Is(err, infra.ErrUnauthorized) {
		k.Token = ""
	}
}

// observe reads the remote shift state. A failed call yields StatusUnknown so
// a transient fault never looks like a shift transition.
func (p *Poller) observe(ctx context.Context, k *model.Kasa) (model.ShiftStatus, string, *model.Shift) {
	logger := zerolog.Ctx(ctx)

	shiftID, err := p.client.CurrentOpenShiftID(ctx, k.LicenseKey, k.Token)
	if err != nil {
		dropSessionOn(k, err)
		logger.Warn().Err(err).Msg("poller: current shift unavailable")
		return model.StatusUnknown, "", nil
	}
	if shiftID == "" {
		return model.StatusClosed, "", nil
	}

	shift, err := p.client.ShiftDetail(ctx, k.LicenseKey, k.Token, shiftID)
	if err != nil {
		dropSessionOn(k, err)
		logger.Warn().Err(err).Str("shift_id", shiftID).Msg("poller: shift detail unavailable")
		return model.StatusUnknown, "", nil
	}
	if shift.IsOpened() {
		return model.StatusOpened, shiftID, shift
	}
	return model.StatusClosed, shiftID, shift
}

// ── Transitions ──────────────────────────────────────────────────────────────

func (p *Poller) openShift(ctx context.Context, k *model.Kasa, shiftID string, shift *model.Shift) {
	logger := zerolog.Ctx(ctx)

	// Start, watermark and numbering belong to one shift; a different id
	// never inherits them.
	if shiftID != k.ShiftID || k.ShiftStart.IsZero() {
		k.ShiftStart = p.now().UTC()
		if shift != nil {
			if opened, ok := model.ParseAPITime(shift.OpenedAt); ok {
				k.ShiftStart = opened.UTC()
			}
		}
		k.Watermark = model.Watermark{Time: k.ShiftStart}
		k.ReceiptCounter = 0
	}
	if k.Watermark.IsZero() {
		k.Watermark = model.Watermark{Time: k.ShiftStart}
	}
	k.ShiftID = shiftID
	k.ShiftClosed = false
	logger.Info().Str("shift_id", shiftID).Time("shift_start", k.ShiftStart).Msg("poller: shift opened")

	p.announceOpen(ctx, k)
}

// announceOpen sends the "opened" message and the X report of the tracked
// shift.
func (p *Poller) announceOpen(ctx context.Context, k *model.Kasa) {
	p.send(ctx, k, notify.ShiftOpened(k.DisplayName()))
	if p.cfg.SendReports {
		p.deliverReport(ctx, k, false, k.ShiftStart, p.now())
	}
}

func (p *Poller) closeShift(ctx context.Context, k *model.Kasa) {
	logger := zerolog.Ctx(ctx)
	now := p.now()
	from := k.ShiftStart
	if from.IsZero() {
		from = p.cfg.HistoryFloor
	}

	receipts, err := p.client.SearchReceipts(ctx, k.LicenseKey, k.Token, k.ShiftID, from, now)
	if err != nil {
		dropSessionOn(k, err)
		logger.Warn().Err(err).Str("shift_id", k.ShiftID).Msg("poller: shift receipts unavailable, summary skipped")
	} else {
		sales := make([]model.Receipt, 0, len(receipts))
		for _, r := range receipts {
			if r.ServiceOut.IsSale() {
				sales = append(sales, r)
			}
		}
		summary := Summarize(sales)
		p.send(ctx, k, notify.ShiftSummary(k.DisplayName(), summary))
		if p.cfg.SendSummaryPDF && p.render != nil && !summary.IsEmpty() {
			p.deliverSummaryPDF(ctx, k, summary, now)
		}
	}

	logger.Info().Str("shift_id", k.ShiftID).Msg("poller: shift closed")
	p.send(ctx, k, notify.ShiftClosed(k.DisplayName()))
	if p.cfg.SendReports && k.ShiftID != "" {
		p.deliverReport(ctx, k, true, from, now)
	}
	k.ResetShift()
}

func (p *Poller) deliverSummaryPDF(ctx context.Context, k *model.Kasa, s model.ShiftSummary, closedAt time.Time) {
	var serial int64
	if shift, err := p.client.ShiftDetail(ctx, k.LicenseKey, k.Token, k.ShiftID); err == nil {
		serial = shift.Serial
	}
	doc, err := p.render(infra.SummaryDocument{
		KasaName:    k.DisplayName(),
		ShiftSerial: serial,
		OpenedAt:    k.ShiftStart.In(p.cfg.Location),
		ClosedAt:    closedAt.In(p.cfg.Location),
		Count:       s.Count,
		Cash:        s.Cash,
		Card:        s.Card,
		Overall:     s.Overall,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("poller: summary pdf failed")
		return
	}
	name := notify.SummaryFilename(serial)
	p.store(ctx, k, name, doc)
	if err := p.notifier.NotifyDocument(ctx, k.UserID, doc, name, ""); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("poller: summary pdf not delivered")
	}
}

// deliverReport sends the X (opening) or Z (closing) report, trying each
// listed report until one yields a usable document.
func (p *Poller) deliverReport(ctx context.Context, k *model.Kasa, closing bool, from, to time.Time) {
	logger := zerolog.Ctx(ctx).With().Bool("z_report", closing).Str("shift_id", k.ShiftID).Logger()

	refs, err := p.client.ReportListing(ctx, k.LicenseKey, k.Token, closing, k.ShiftID, from, to)
	if err != nil {
		dropSessionOn(k, err)
		logger.Warn().Err(err).Msg("poller: report listing unavailable")
		return
	}
	for _, ref := range refs {
		docID := ref.DocumentID()
		if docID == "" {
			continue
		}
		doc, err := p.client.ReceiptDocument(ctx, k.LicenseKey, k.Token, docID)
		if err != nil {
			logger.Debug().Err(err).Str("document_id", docID).Msg("poller: report candidate unusable")
			continue
		}
		name := notify.ReportFilename(closing, k.ShiftID)
		p.store(ctx, k, name, doc)
		if err := p.notifier.NotifyDocument(ctx, k.UserID, doc, name, notify.ReportCaption(closing, k.ShiftID)); err != nil {
			logger.Warn().Err(err).Msg("poller: report not delivered")
		}
		return
	}
	logger.Warn().Int("candidates", len(refs)).Msg("poller: no usable report document")
}

// ── Receipts ─────────────────────────────────────────────────────────────────

// dispatchReceipts delivers the receipts that arrived since the watermark,
// advancing it after each delivered receipt.
func (p *Poller) dispatchReceipts(ctx context.Context, k *model.Kasa) error {
	logger := zerolog.Ctx(ctx)
	now := p.now()

	if k.Watermark.IsZero() {
		batch, err := p.client.SearchReceipts(ctx, k.LicenseKey, k.Token, k.ShiftID, p.cfg.HistoryFloor, now)
		if err != nil {
			dropSessionOn(k, err)
			return fmt.Errorf("seed watermark: %w", err)
		}
		_, seeded := Delta(model.Watermark{}, batch)
		if seeded.IsZero() {
			seeded = model.Watermark{Time: k.ShiftStart}
			if k.ShiftStart.IsZero() {
				seeded.Time = now.UTC()
			}
		}
		k.Watermark = seeded
		logger.Info().Time("watermark", seeded.Time).Str("receipt_id", seeded.ID).Msg("poller: receipt watermark initialised")
		return nil
	}

	batch, err := p.client.SearchReceipts(ctx, k.LicenseKey, k.Token, k.ShiftID, k.Watermark.Time, now)
	if err != nil {
		dropSessionOn(k, err)
		return fmt.Errorf("search receipts: %w", err)
	}
	fresh, _ := Delta(k.Watermark, batch)

	for _, r := range fresh {
		at, _ := r.EffectiveTime()
		detail, err := p.client.ReceiptDetail(ctx, k.LicenseKey, k.Token, r.ID)
		if err != nil {
			dropSessionOn(k, err)
			logger.Warn().Err(err).Str("receipt_id", r.ID).Msg("poller: receipt detail unavailable, retrying next tick")
			return nil
		}
		if detail.IsServiceMovement() || !detail.ServiceOut.IsSale() {
			k.Watermark = k.Watermark.Advance(at, r.ID)
			continue
		}
		err = p.deliverReceipt(ctx, k, *detail)
		switch {
		case errors.Is(err, infra.ErrChatUnreachable):
			logger.Warn().Err(err).Str("receipt_id", r.ID).Msg("poller: chat unreachable, receipt skipped")
		case err != nil:
			logger.Warn().Err(err).Str("receipt_id", r.ID).Msg("poller: receipt not delivered, retrying next tick")
			return nil
		}
		k.Watermark = k.Watermark.Advance(at, r.ID)
	}
	return nil
}

// deliverReceipt sends the receipt document with the card as caption, or the
// card as text when no document is available or its upload fails. Cards too
// long for a caption follow the document as text. A receipt that cannot reach
// the chat at all still takes its number.
func (p *Poller) deliverReceipt(ctx context.Context, k *model.Kasa, r model.Receipt) error {
	logger := zerolog.Ctx(ctx).With().Str("receipt_id", r.ID).Logger()
	number := k.ReceiptCounter + 1
	card := notify.ReceiptCard(k.DisplayName(), number, r, p.cfg.Location)

	doc, err := p.client.ReceiptDocument(ctx, k.LicenseKey, k.Token, r.ID)
	if err != nil {
		logger.Debug().Err(err).Msg("poller: receipt document unavailable, sending text")
		err = p.notifier.NotifyText(ctx, k.UserID, card)
	} else {
		name := notify.ReceiptFilename(r)
		p.store(ctx, k, name, doc)

		caption, text := card, ""
		if utf8.RuneCountInString(card) > notify.CaptionLimit {
			caption, text = notify.ReceiptCaption(k.DisplayName(), number), card
		}
		if err = p.notifier.NotifyDocument(ctx, k.UserID, doc, name, caption); err != nil {
			logger.Warn().Err(err).Msg("poller: receipt document not delivered, sending text")
			text = card
		}
		if text != "" {
			err = p.notifier.NotifyText(ctx, k.UserID, text)
		}
	}

	if err == nil || errors.Is(err, infra.ErrChatUnreachable) {
		k.ReceiptCounter = number
	}
	return err
}

func (p *Poller) send(ctx context.Context, k *model.Kasa, text string) {
	if err := p.notifier.NotifyText(ctx, k.UserID, text); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("poller: notification not delivered")
	}
}

func (p *Poller) store(ctx context.Context, k *model.Kasa, name string, doc []byte) {
	if p.archive == nil {
		return
	}
	if err := p.archive.Store(ctx, k.ID.String(), k.ShiftID, name, doc); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("file", name).Msg("poller: archive failed")
	}
}
