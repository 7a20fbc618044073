package service

import (
	"context"
	"errors"
	"time"

	"kasabot/internal/dto"
	"kasabot/internal/model"
	"kasabot/internal/notify"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNoKasas is returned when polling is requested for a user with no devices.
var ErrNoKasas = errors.New("no kasas registered, add one first")

type KasaService interface {
	Register(ctx context.Context, userID string, req dto.RegisterKasaRequest) (*dto.RegisterKasaResponse, error)
	List(ctx context.Context, userID string) []dto.KasaResponse
	Status(ctx context.Context, userID string, kasaID uuid.UUID) (*dto.KasaStatusResponse, error)
	StartPolling(ctx context.Context, userID string) (*dto.StartPollingResponse, error)
	Remove(ctx context.Context, userID string, kasaID uuid.UUID) error
}

type kasaService struct {
	registry *Registry
	client   FiscalClient
	poller   *Poller
}

func NewKasaService(registry *Registry, client FiscalClient, poller *Poller) KasaService {
	return &kasaService{registry: registry, client: client, poller: poller}
}

// Register validates the credentials against the fiscal API, stores the
// device and starts polling it.
func (s *kasaService) Register(ctx context.Context, userID string, req dto.RegisterKasaRequest) (*dto.RegisterKasaResponse, error) {
	token, err := s.client.SignIn(ctx, req.LicenseKey, req.PinCode)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("kasa: registration sign in failed")
		return nil, ErrInvalidCredentials
	}

	title, err := s.client.CashRegisterTitle(ctx, req.LicenseKey, token)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("kasa: register title unavailable")
		title = ""
	}

	k, err := s.registry.Add(ctx, userID, model.Kasa{
		LicenseKey:  req.LicenseKey,
		PinCode:     req.PinCode,
		Name:        title,
		ShiftClosed: true,
		Token:       token,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", userID).Str("kasa", k.DisplayName()).Int("index", k.Index).Msg("kasa: registered")

	line := s.statusLine(ctx, k)
	s.poller.StartUser(userID, false)

	return &dto.RegisterKasaResponse{
		Kasa:    s.toResponse(k),
		Message: notify.KasaAdded(k.DisplayName(), line),
	}, nil
}

func (s *kasaService) List(_ context.Context, userID string) []dto.KasaResponse {
	kasas := s.registry.List(userID)
	out := make([]dto.KasaResponse, 0, len(kasas))
	for _, k := range kasas {
		out = append(out, s.toResponse(k))
	}
	return out
}

func (s *kasaService) Status(ctx context.Context, userID string, kasaID uuid.UUID) (*dto.KasaStatusResponse, error) {
	k, err := s.find(userID, kasaID)
	if err != nil {
		return nil, err
	}
	return &dto.KasaStatusResponse{KasaID: k.ID.String(), Message: s.statusLine(ctx, k)}, nil
}

// StartPolling re-announces the current shift state of every device on its
// next tick and starts any loop that is not running.
func (s *kasaService) StartPolling(_ context.Context, userID string) (*dto.StartPollingResponse, error) {
	kasas := s.registry.List(userID)
	if len(kasas) == 0 {
		return nil, ErrNoKasas
	}
	started := s.poller.StartUser(userID, true)
	log.Info().Str("user_id", userID).Int("kasas", len(kasas)).Int("started", started).Msg("kasa: polling started")
	return &dto.StartPollingResponse{
		Kasas:   len(kasas),
		Started: started,
		Message: "Моніторинг запущено. Очікуйте сповіщення про зміни.",
	}, nil
}

func (s *kasaService) Remove(ctx context.Context, userID string, kasaID uuid.UUID) error {
	if err := s.registry.Remove(ctx, userID, kasaID); err != nil {
		return err
	}
	log.Info().Str("user_id", userID).Str("kasa_id", kasaID.String()).Msg("kasa: removed")
	return nil
}

func (s *kasaService) find(userID string, kasaID uuid.UUID) (model.Kasa, error) {
	for _, k := range s.registry.List(userID) {
		if k.ID == kasaID {
			return k, nil
		}
	}
	return model.Kasa{}, ErrKasaNotFound
}

// statusLine reads the live shift state. The token it obtains is not stored:
// the polling loop owns the device's session.
func (s *kasaService) statusLine(ctx context.Context, k model.Kasa) string {
	token := k.Token
	if token == "" {
		var err error
		if token, err = s.client.SignIn(ctx, k.LicenseKey, k.PinCode); err != nil {
			return notify.StatusUnavailable(k.DisplayName())
		}
	}
	shiftID, err := s.client.CurrentOpenShiftID(ctx, k.LicenseKey, token)
	if err != nil {
		return notify.StatusUnavailable(k.DisplayName())
	}
	if shiftID == "" {
		return notify.StatusLine(k.DisplayName(), nil)
	}
	shift, err := s.client.ShiftDetail(ctx, k.LicenseKey, token, shiftID)
	if err != nil {
		return notify.StatusUnavailable(k.DisplayName())
	}
	return notify.StatusLine(k.DisplayName(), shift)
}

func (s *kasaService) toResponse(k model.Kasa) dto.KasaResponse {
	resp := dto.KasaResponse{
		ID:         k.ID.String(),
		Index:      k.Index,
		Name:       k.DisplayName(),
		ShiftOpen:  k.ShiftID != "" && !k.ShiftClosed,
		LastStatus: statusName(k.PreviousStatus()),
		Polling:    s.poller.IsRunning(k.ID),
	}
	if k.ShiftID != "" {
		id := k.ShiftID
		resp.ShiftID = &id
	}
	if !k.Watermark.IsZero() {
		t := k.Watermark.Time.UTC().Format(time.RFC3339Nano)
		resp.WatermarkTime = &t
		if k.Watermark.ID != "" {
			id := k.Watermark.ID
			resp.WatermarkID = &id
		}
	}
	return resp
}

func statusName(s model.ShiftStatus) string {
	if s == model.StatusUnknown {
		return "unknown"
	}
	return string(s)
}
