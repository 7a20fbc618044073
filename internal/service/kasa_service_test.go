package service

import (
	"context"
	"testing"
	"time"

	"kasabot/internal/dto"
	"kasabot/internal/infra"
	"kasabot/internal/model"
	"kasabot/internal/notify"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKasaService(t *testing.T, kasas ...model.Kasa) (KasaService, *harness) {
	t.Helper()
	h := newHarness(t, kasas...)
	h.poller.sleep = blockUntilDone
	ctx, cancel := context.WithCancel(context.Background())
	h.poller.Start(ctx)
	t.Cleanup(func() {
		cancel()
		h.poller.Wait()
	})
	return NewKasaService(h.registry, h.fiscal, h.poller), h
}

var registerReq = dto.RegisterKasaRequest{LicenseKey: "LICENSE-1", PinCode: "1234"}

func TestKasaService_Register(t *testing.T) {
	svc, h := newKasaService(t)
	h.fiscal.set(func(f *fakeFiscal) { f.title = "Kava" })
	h.fiscal.open("s1", 12, base)

	resp, err := svc.Register(context.Background(), "100", registerReq)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Kasa.Index)
	assert.Equal(t, "Kava", resp.Kasa.Name)
	assert.Equal(t, notify.KasaAdded("Kava", notify.StatusLine("Kava", &model.Shift{ID: "s1", Serial: 12, Status: "OPENED"})), resp.Message)

	stored := h.store.get("100")
	require.Len(t, stored, 1)
	assert.Equal(t, "LICENSE-1", stored[0].LicenseKey)
	assert.True(t, stored[0].ShiftClosed)

	id := uuid.MustParse(resp.Kasa.ID)
	require.Eventually(t, func() bool { return h.poller.IsRunning(id) }, 2*time.Second, 10*time.Millisecond)
}

func TestKasaService_RegisterWithoutTitleUsesOrdinal(t *testing.T) {
	svc, _ := newKasaService(t)

	resp, err := svc.Register(context.Background(), "100", registerReq)
	require.NoError(t, err)

	assert.Equal(t, "Каса №1", resp.Kasa.Name)
	assert.Contains(t, resp.Message, notify.StatusLine("Каса №1", nil))
}

func TestKasaService_RegisterRejectsBadCredentials(t *testing.T) {
	svc, h := newKasaService(t)
	h.fiscal.set(func(f *fakeFiscal) { f.signInErr = infra.ErrUnauthorized })

	_, err := svc.Register(context.Background(), "100", registerReq)

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, h.registry.Users())
}

func TestKasaService_StatusScopedToOwner(t *testing.T) {
	k := newKasa("100")
	svc, h := newKasaService(t, k)
	h.fiscal.set(func(f *fakeFiscal) { f.detailErr = infra.ErrCircuitOpen })
	h.fiscal.open("s1", 3, base)

	resp, err := svc.Status(context.Background(), "100", k.ID)
	require.NoError(t, err)
	assert.Equal(t, notify.StatusUnavailable("Kava"), resp.Message)

	_, err = svc.Status(context.Background(), "200", k.ID)
	assert.ErrorIs(t, err, ErrKasaNotFound)
}

func TestKasaService_StartPolling(t *testing.T) {
	svc, _ := newKasaService(t)
	_, err := svc.StartPolling(context.Background(), "100")
	assert.ErrorIs(t, err, ErrNoKasas)

	k := newKasa("100")
	svc, h := newKasaService(t, k)
	resp, err := svc.StartPolling(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Kasas)
	assert.Equal(t, 1, resp.Started)
	require.Eventually(t, func() bool { return h.poller.IsRunning(k.ID) }, 2*time.Second, 10*time.Millisecond)

	list := svc.List(context.Background(), "100")
	require.Len(t, list, 1)
	assert.True(t, list[0].Polling)
}

func TestKasaService_ListAndRemove(t *testing.T) {
	k := openKasa("100", wmAt(2, "r9"))
	svc, _ := newKasaService(t, k)

	list := svc.List(context.Background(), "100")
	require.Len(t, list, 1)
	assert.Equal(t, k.ID.String(), list[0].ID)
	assert.True(t, list[0].ShiftOpen)
	assert.Equal(t, "OPENED", list[0].LastStatus)
	require.NotNil(t, list[0].WatermarkID)
	assert.Equal(t, "r9", *list[0].WatermarkID)
	assert.False(t, list[0].Polling)

	assert.ErrorIs(t, svc.Remove(context.Background(), "200", k.ID), ErrKasaNotFound)
	require.NoError(t, svc.Remove(context.Background(), "100", k.ID))
	assert.Empty(t, svc.List(context.Background(), "100"))
}
