package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

type RegisterKasaRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=8,max=128"`
	PinCode    string `json:"pin_code"    validate:"required,numeric,min=4,max=16"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type KasaResponse struct {
	ID            string  `json:"id"`
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	ShiftID       *string `json:"shift_id"`
	ShiftOpen     bool    `json:"shift_open"`
	LastStatus    string  `json:"last_status"`
	Polling       bool    `json:"polling"`
	WatermarkTime *string `json:"watermark_time"`
	WatermarkID   *string `json:"watermark_id"`
}

type RegisterKasaResponse struct {
	Kasa    KasaResponse `json:"kasa"`
	Message string       `json:"message"`
}

type KasaStatusResponse struct {
	KasaID  string `json:"kasa_id"`
	Message string `json:"message"`
}

type StartPollingResponse struct {
	Kasas   int    `json:"kasas"`
	Started int    `json:"started"`
	Message string `json:"message"`
}
