package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"licensedesk/internal/artifact"
	"licensedesk/internal/domain"
	"licensedesk/internal/usecase"
)

type API struct {
	svc      *usecase.IssuanceService
	renderer *artifact.Renderer
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(svc *usecase.IssuanceService, renderer *artifact.Renderer, hub *Hub, logger *slog.Logger) *API {
	return &API{
		svc:      svc,
		renderer: renderer,
		hub:      hub,
		logger:   logger.With(slog.String("component", "httpapi")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /v1/issue", a.handleIssue)
	mux.HandleFunc("POST /v1/issue-batch", a.handleIssueBatch)
	mux.HandleFunc("GET /v1/licenses", a.handleList)
	mux.HandleFunc("GET /v1/licenses/{key}/artifact.png", a.handleArtifact)
	if a.hub != nil {
		mux.HandleFunc("GET /ws", a.handleWS)
	}
	return mux
}

type issueRequest struct {
	HolderName  string `json:"holder_name"`
	HolderPhone string `json:"holder_phone"`
}

type issueBatchRequest struct {
	Count int `json:"count"`
}

type licenseResponse struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	HolderName  string    `json:"holder_name,omitempty"`
	HolderPhone string    `json:"holder_phone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(rec *domain.LicenseRecord) licenseResponse {
	resp := licenseResponse{ID: rec.ID, Key: rec.Key, CreatedAt: rec.CreatedAt}
	if rec.Holder != nil {
		resp.HolderName = rec.Holder.Name
		resp.HolderPhone = rec.Holder.Phone
	}
	return resp
}

func (a *API) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json"})
		return
	}

	// Пустая форма = анонимная выдача
	var holder *domain.Holder
	if req.HolderName != "" || req.HolderPhone != "" {
		holder = &domain.Holder{Name: req.HolderName, Phone: req.HolderPhone}
	}

	rec, err := a.svc.IssueOne(r.Context(), holder)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(rec))
}

func (a *API) handleIssueBatch(w http.ResponseWriter, r *http.Request) {
	var req issueBatchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json"})
		return
	}

	records, err := a.svc.IssueBatch(r.Context(), req.Count)
	if err != nil {
		a.writeError(w, err)
		return
	}

	out := make([]licenseResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toResponse(rec))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := a.svc.ListAll(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]licenseResponse, 0, len(records))
	for i := range records {
		out = append(out, toResponse(&records[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleArtifact(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	// Артефакт - чистая функция ключа, но отдаем его только для реально
	// выданных лицензий, чтобы эндпоинт не работал генератором QR для всех желающих
	taken, err := a.svc.Exists(r.Context(), key)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if !taken {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown_key"})
		return
	}

	art, err := a.renderer.Render(&domain.LicenseRecord{Key: key})
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("content-type", "image/png")
	w.WriteHeader(http.StatusOK)
	_ = art.WritePNG(w)
}

// handleWS подключает клиента к live-фиду событий выдачи.
// Читающий цикл нужен только чтобы заметить закрытие со стороны клиента.
func (a *API) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("ws upgrade failed", slog.String("err", err.Error()))
		return
	}
	a.hub.register <- conn

	go func() {
		defer func() { a.hub.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	var pErr *domain.PersistenceError
	var rErr *domain.RenderError

	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: vErr.Error()})
	case errors.Is(err, domain.ErrCollisionExhausted):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "collision_exhausted"})
	case errors.As(err, &pErr):
		a.logger.Error("persistence failure", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "persistence_failed"})
	case errors.As(err, &rErr):
		a.logger.Error("render failure", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "render_failed"})
	default:
		a.logger.Error("unexpected failure", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
