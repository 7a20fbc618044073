package handler

import (
	"errors"
	"net/http"

	"kasabot/internal/apierror"
	"kasabot/internal/dto"
	"kasabot/internal/service"

	"github.com/gin-gonic/gin"
)

type KasasHandler struct{ svc service.KasaService }

func NewKasasHandler(svc service.KasaService) *KasasHandler { return &KasasHandler{svc: svc} }

// List godoc
// @Summary      List a user's kasas
// @Tags         kasas
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      string  true  "Telegram chat id"
// @Success      200      {object}  map[string][]dto.KasaResponse
// @Failure      400      {object}  apierror.APIError
// @Router       /v1/users/{user_id}/kasas [get]
func (h *KasasHandler) List(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"kasas": h.svc.List(c.Request.Context(), user)})
}

// Register godoc
// @Summary      Register a kasa and start polling it
// @Tags         kasas
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      string                   true  "Telegram chat id"
// @Param        body     body      dto.RegisterKasaRequest  true  "Checkbox credentials"
// @Success      201      {object}  dto.RegisterKasaResponse
// @Failure      422      {object}  apierror.APIError
// @Router       /v1/users/{user_id}/kasas [post]
func (h *KasasHandler) Register(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var req dto.RegisterKasaRequest
	if !bindAndValidate(c, &req) {
		return
	}

	resp, err := h.svc.Register(c.Request.Context(), user, req)
	if errors.Is(err, service.ErrInvalidCredentials) {
		c.JSON(http.StatusUnprocessableEntity, apierror.New(err.Error()))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Status godoc
// @Summary      Live shift status of a kasa
// @Tags         kasas
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      string  true  "Telegram chat id"
// @Param        kasa_id  path      string  true  "Kasa id (UUID)"
// @Success      200      {object}  dto.KasaStatusResponse
// @Failure      404      {object}  apierror.APIError
// @Router       /v1/users/{user_id}/kasas/{kasa_id}/status [get]
func (h *KasasHandler) Status(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	id, ok := kasaID(c)
	if !ok {
		return
	}

	resp, err := h.svc.Status(c.Request.Context(), user, id)
	if errors.Is(err, service.ErrKasaNotFound) {
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StartPolling godoc
// @Summary      Start polling and re-announce open shifts
// @Tags         kasas
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      string  true  "Telegram chat id"
// @Success      202      {object}  dto.StartPollingResponse
// @Failure      409      {object}  apierror.APIError
// @Router       /v1/users/{user_id}/polling/start [post]
func (h *KasasHandler) StartPolling(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}

	resp, err := h.svc.StartPolling(c.Request.Context(), user)
	if errors.Is(err, service.ErrNoKasas) {
		c.JSON(http.StatusConflict, apierror.New(err.Error()))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// Remove godoc
// @Summary      Remove a kasa
// @Tags         kasas
// @Security     BearerAuth
// @Param        user_id  path  string  true  "Telegram chat id"
// @Param        kasa_id  path  string  true  "Kasa id (UUID)"
// @Success      204
// @Failure      404  {object}  apierror.APIError
// @Router       /v1/users/{user_id}/kasas/{kasa_id} [delete]
func (h *KasasHandler) Remove(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	id, ok := kasaID(c)
	if !ok {
		return
	}

	err := h.svc.Remove(c.Request.Context(), user, id)
	if errors.Is(err, service.ErrKasaNotFound) {
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
