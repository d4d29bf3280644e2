package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/libra/internal/app"
	"github.com/ayusman/libra/internal/inference"
)

// ModelHandler handles HTTP requests for the inference session.
//
//	GET  /api/model      current model status
//	POST /api/model      load a model (body: {"location": "..."})
//	POST /api/model/run  run the session (body: {"data": [...], "shape": [...]}, empty for dummy input)
type ModelHandler struct {
	app *app.App
}

// NewModelHandler creates a new ModelHandler for the given app.
func NewModelHandler(a *app.App) *ModelHandler {
	return &ModelHandler{app: a}
}

type loadModelRequest struct {
	Location string `json:"location"`
}

type modelResponse struct {
	Model       app.ModelStatus `json:"model"`
	Accelerated bool            `json:"accelerated"`
	Message     string          `json:"message"`
}

type runRequest struct {
	Data  []float32 `json:"data"`
	Shape []int64   `json:"shape"`
}

// ServeHTTP implements the http.Handler interface.
func (h *ModelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/model")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.status(w, r)
		case http.MethodPost:
			h.load(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "run":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.run(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *ModelHandler) response() modelResponse {
	st := h.app.Status()
	return modelResponse{Model: st.Model, Accelerated: st.Accelerated, Message: st.Message}
}

func (h *ModelHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.response())
}

func (h *ModelHandler) load(w http.ResponseWriter, r *http.Request) {
	var req loadModelRequest
	if err := decodeOptional(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if _, err := h.app.LoadModel(r.Context(), req.Location); err != nil {
		var creationErr *inference.SessionCreationError
		if errors.As(err, &creationErr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.response())
}

func (h *ModelHandler) run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeOptional(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	var (
		result *app.RunResult
		err    error
	)
	if req.Data == nil && req.Shape == nil {
		result, err = h.app.RunDummy(r.Context())
	} else {
		result, err = h.app.Run(r.Context(), req.Data, req.Shape)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, inference.ErrSessionNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, inference.ErrShapeMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
