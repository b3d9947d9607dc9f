package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-claim/pkg/device"
	apperrors "github.com/tendant/simple-claim/pkg/errors"
)

// Handler exposes the device-claim operations over HTTP. Every route
// requires an authenticated user; the jwtauth middleware is expected to have
// verified the token before these handlers run.
type Handler struct {
	service *device.Service
}

// NewHandler creates a new device API handler
func NewHandler(service *device.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// Routes returns the device API router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/claim", h.ClaimDevice)
	r.Post("/release", h.ReleaseDevice)
	r.Get("/devices", h.ListDevices)
	r.Get("/devices/{deviceId}/permission", h.GetPermission)
	return r
}

// ClaimDevice handles POST /claim
func (h *Handler) ClaimDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		slog.Error("Failed to get user ID from context", "error", err)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeNotAuthenticated), Error: "Unauthorized"})
		return
	}

	var req ClaimDeviceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeInvalidInput), Error: "Invalid request body"})
		return
	}

	if err := h.service.Claim(r.Context(), userID, req.DeviceID); err != nil {
		renderServiceError(w, r, err, "Failed to claim device")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Message: "Device claimed successfully"})
}

// ReleaseDevice handles POST /release
func (h *Handler) ReleaseDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		slog.Error("Failed to get user ID from context", "error", err)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeNotAuthenticated), Error: "Unauthorized"})
		return
	}

	var req ReleaseDeviceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeInvalidInput), Error: "Invalid request body"})
		return
	}

	if err := h.service.Release(r.Context(), userID, req.DeviceID); err != nil {
		renderServiceError(w, r, err, "Failed to release device")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Message: "Device released successfully"})
}

// ListDevices handles GET /devices
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		slog.Error("Failed to get user ID from context", "error", err)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeNotAuthenticated), Error: "Unauthorized"})
		return
	}

	devices, err := h.service.List(r.Context(), userID)
	if err != nil {
		renderServiceError(w, r, err, "Failed to list devices")
		return
	}

	response := DeviceListResponse{Devices: []DeviceResponse{}}
	for _, info := range devices {
		var dto DeviceResponse
		copier.Copy(&dto, &info)
		response.Devices = append(response.Devices, dto)
	}
	response.Count = len(response.Devices)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// GetPermission handles GET /devices/{deviceId}/permission
func (h *Handler) GetPermission(w http.ResponseWriter, r *http.Request) {
	if _, err := getUserIDFromContext(r); err != nil {
		slog.Error("Failed to get user ID from context", "error", err)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeNotAuthenticated), Error: "Unauthorized"})
		return
	}

	deviceID := chi.URLParam(r, "deviceId")
	render.Status(r, http.StatusOK)
	render.JSON(w, r, PermissionResponse{
		DeviceID:      deviceID,
		HasPermission: h.service.HasPermission(r.Context(), deviceID),
	})
}

// renderServiceError maps a service error onto its HTTP status and body
func renderServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code := apperrors.GetCode(err)
	status := apperrors.MapErrorCodeToHTTPStatus(code)

	message := fallback
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		slog.Error(fallback, "error", err)
		message = fallback
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: string(code), Error: message})
}

// getUserIDFromContext extracts the authenticated user id from the JWT
// claims placed in the request context by the jwtauth middleware
func getUserIDFromContext(r *http.Request) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", err
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("sub claim not found in token")
	}
	return sub, nil
}
