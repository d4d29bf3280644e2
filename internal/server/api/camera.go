package api

import (
	"net/http"

	"github.com/ayusman/libra/internal/app"
	"github.com/ayusman/libra/internal/capture"
)

// CameraHandler handles HTTP requests for the camera.
//
//	GET    /api/camera  current camera status
//	POST   /api/camera  reacquire with {"width", "height", "facingMode"}
//	DELETE /api/camera  release the camera
type CameraHandler struct {
	app *app.App
}

// NewCameraHandler creates a new CameraHandler for the given app.
func NewCameraHandler(a *app.App) *CameraHandler {
	return &CameraHandler{app: a}
}

// ServeHTTP implements the http.Handler interface.
func (h *CameraHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.app.Status().Camera)
	case http.MethodPost:
		h.configure(w, r)
	case http.MethodDelete:
		if err := h.app.StopCamera(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, h.app.Status().Camera)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CameraHandler) configure(w http.ResponseWriter, r *http.Request) {
	var cfg capture.Config
	if err := decodeOptional(w, r, &cfg); err != nil {
		writeDecodeError(w, err)
		return
	}

	if _, err := h.app.ConfigureCamera(r.Context(), cfg); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, h.app.Status().Camera)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Status().Camera)
}
