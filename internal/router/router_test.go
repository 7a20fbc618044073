package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"kasabot/internal/config"
	"kasabot/internal/handler"
	"kasabot/internal/infra"
	"kasabot/internal/model"
	"kasabot/internal/repository"
	"kasabot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() { gin.SetMode(gin.TestMode) }

// stubFiscal accepts every pin except "0000" and reports no open shift.
type stubFiscal struct{}

func (stubFiscal) SignIn(_ context.Context, _, pin string) (string, error) {
	if pin == "0000" {
		return "", infra.ErrUnauthorized
	}
	return "tok", nil
}
func (stubFiscal) CashRegisterTitle(context.Context, string, string) (string, error) {
	return "Kava", nil
}
func (stubFiscal) CurrentOpenShiftID(context.Context, string, string) (string, error) {
	return "", nil
}
func (stubFiscal) ShiftDetail(context.Context, string, string, string) (*model.Shift, error) {
	return nil, infra.ErrNotFound
}
func (stubFiscal) SearchReceipts(context.Context, string, string, string, time.Time, time.Time) ([]model.Receipt, error) {
	return nil, nil
}
func (stubFiscal) ReceiptDetail(context.Context, string, string, string) (*model.Receipt, error) {
	return nil, infra.ErrNotFound
}
func (stubFiscal) ReceiptDocument(context.Context, string, string, string) ([]byte, error) {
	return nil, infra.ErrNotFound
}
func (stubFiscal) ReportListing(context.Context, string, string, bool, string, time.Time, time.Time) ([]model.ReportRef, error) {
	return nil, nil
}

type silentNotifier struct{}

func (silentNotifier) NotifyText(context.Context, string, string) error { return nil }
func (silentNotifier) NotifyDocument(context.Context, string, []byte, string, string) error {
	return nil
}

type fixedBreaker infra.CBState

func (b fixedBreaker) BreakerState() infra.CBState { return infra.CBState(b) }

const adminPassword = "s3cret-pass"

func newTestEngine(t *testing.T, adminEnabled bool) *gin.Engine {
	t.Helper()
	cfg := &config.Config{
		Env:                "test",
		AdminUsername:      "admin",
		JWTSecret:          "test-secret",
		JWTExpirationHours: 1,
	}
	if adminEnabled {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
		require.NoError(t, err)
		cfg.AdminPasswordHash = string(hash)
	}

	store := repository.NewFileKasaStore(filepath.Join(t.TempDir(), "kasas.json"))
	reg, err := service.LoadRegistry(context.Background(), store)
	require.NoError(t, err)
	poller := service.NewPoller(service.PollerConfig{
		IntervalOpen:   time.Hour,
		IntervalClosed: time.Hour,
		ErrorBackoff:   time.Hour,
	}, reg, stubFiscal{}, silentNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	poller.Start(ctx)
	t.Cleanup(func() {
		cancel()
		poller.Wait()
	})

	return New(cfg, Deps{
		Registry: reg,
		Poller:   poller,
		Fiscal:   stubFiscal{},
		Breakers: map[string]handler.BreakerReporter{
			"checkbox": fixedBreaker(infra.CBClosed),
			"telegram": fixedBreaker(infra.CBOpen),
		},
	})
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func login(t *testing.T, r http.Handler) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "admin", "password": adminPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decode(t, w)["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealth_FileStoreWithoutRedis(t *testing.T) {
	r := newTestEngine(t, false)

	w := do(t, r, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "file", body["store"])
	assert.Equal(t, "disabled", body["redis"])
	assert.Equal(t, map[string]any{"checkbox": "closed", "telegram": "open"}, body["breakers"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAdminRoutesAbsentWithoutPasswordHash(t *testing.T) {
	r := newTestEngine(t, false)

	w := do(t, r, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "admin", "password": adminPassword})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogin_RejectsWrongPassword(t *testing.T) {
	r := newTestEngine(t, true)

	w := do(t, r, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "admin", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestKasaRoutes_RequireToken(t *testing.T) {
	r := newTestEngine(t, true)

	w := do(t, r, http.MethodGet, "/v1/users/100/kasas", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodGet, "/v1/users/100/kasas", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKasaRoutes_Lifecycle(t *testing.T) {
	r := newTestEngine(t, true)
	token := login(t, r)

	w := do(t, r, http.MethodPost, "/v1/users/100/polling/start", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "nothing registered yet")

	w = do(t, r, http.MethodPost, "/v1/users/100/kasas", token, map[string]string{"license_key": "LICENSE-0001", "pin_code": "0000"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "rejected by the fiscal API")

	w = do(t, r, http.MethodPost, "/v1/users/100/kasas", token, map[string]string{"license_key": "short", "pin_code": "12ab"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields, _ := decode(t, w)["fields"].(map[string]any)
	assert.Contains(t, fields, "LicenseKey")
	assert.Contains(t, fields, "PinCode")

	w = do(t, r, http.MethodPost, "/v1/users/100/kasas", token, map[string]string{"license_key": "LICENSE-0001", "pin_code": "1234"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	kasa, _ := decode(t, w)["kasa"].(map[string]any)
	require.NotNil(t, kasa)
	id, _ := kasa["id"].(string)
	assert.Equal(t, "Kava", kasa["name"])
	assert.EqualValues(t, 1, kasa["index"])

	w = do(t, r, http.MethodGet, "/v1/users/100/kasas", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list, _ := decode(t, w)["kasas"].([]any)
	assert.Len(t, list, 1)

	w = do(t, r, http.MethodGet, "/v1/users/200/kasas/"+id+"/status", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "kasas are scoped to their owner")

	w = do(t, r, http.MethodGet, "/v1/users/100/kasas/"+id+"/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["kasa_id"])

	w = do(t, r, http.MethodPost, "/v1/users/100/polling/start", token, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["kasas"])

	w = do(t, r, http.MethodDelete, "/v1/users/100/kasas/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodDelete, "/v1/users/100/kasas/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKasaRoutes_ValidatePathParams(t *testing.T) {
	r := newTestEngine(t, true)
	token := login(t, r)

	w := do(t, r, http.MethodGet, "/v1/users/abc/kasas", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/v1/users/100/kasas/not-a-uuid/status", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwaggerUIMountedWithAdminAPI(t *testing.T) {
	w := do(t, newTestEngine(t, true), http.MethodGet, "/swagger/index.html", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, newTestEngine(t, false), http.MethodGet, "/swagger/index.html", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
