package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/park285/chess-tutor/internal/msgcat"
	"github.com/park285/chess-tutor/internal/tutor"
	"github.com/park285/chess-tutor/pkg/tutordto"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const maxBodyBytes = 1 << 14

// Tutor is the slice of tutor.Service the HTTP layer drives.
type Tutor interface {
	Start(ctx context.Context) (*tutordto.State, error)
	State(ctx context.Context, id string) (*tutordto.State, error)
	Play(ctx context.Context, id, input string, opts tutor.PlayOptions) (*tutordto.MoveSummary, error)
	Reset(ctx context.Context, id string) (*tutordto.State, error)
	Resign(ctx context.Context, id string) (*tutordto.State, error)
	Undo(ctx context.Context, id string) (*tutordto.State, error)
	Clip(ctx context.Context, clipID string) ([]byte, error)
	Board(ctx context.Context, id string, ply int, asPNG bool) ([]byte, error)
	History(ctx context.Context, limit int) ([]tutordto.GameRecord, error)
	Game(ctx context.Context, id int64) (*tutordto.GameRecord, error)
}

type Server struct {
	tutor    Tutor
	hub      *Hub
	catalog  *msgcat.Catalog
	features tutordto.Features
	logger   *zap.Logger
}

func NewServer(t Tutor, hub *Hub, catalog *msgcat.Catalog, features tutordto.Features, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	if catalog == nil {
		catalog, _ = msgcat.New("")
	}
	return &Server{tutor: t, hub: hub, catalog: catalog, features: features, logger: logger}
}

// Handler returns the routed handler wrapped in request id and access log middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/games", s.handleStart)
	mux.HandleFunc("GET /api/games/{id}", s.handleState)
	mux.HandleFunc("POST /api/games/{id}/moves", s.handlePlay)
	mux.HandleFunc("POST /api/games/{id}/undo", s.stateAction(s.tutor.Undo))
	mux.HandleFunc("POST /api/games/{id}/resign", s.stateAction(s.tutor.Resign))
	mux.HandleFunc("POST /api/games/{id}/reset", s.stateAction(s.tutor.Reset))
	mux.HandleFunc("GET /api/games/{id}/board.svg", s.handleBoard(false))
	mux.HandleFunc("GET /api/games/{id}/board.png", s.handleBoard(true))
	mux.HandleFunc("GET /api/games/{id}/ws", s.handleWS)
	mux.HandleFunc("GET /api/clips/{id}", s.handleClip)

	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/history/{gameID}", s.handleGame)

	return RequestID(AccessLog(s.logger, mux))
}

type indexData struct {
	Features tutordto.Features
	Notices  []string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{Features: s.features}
	if !s.features.Engine {
		data.Notices = append(data.Notices, s.catalog.Text("feature.engine_missing", nil, "Chess engine executable not found."))
	}
	if !s.features.Coach || !s.features.Speech {
		data.Notices = append(data.Notices, s.catalog.Text("feature.secrets_missing", nil, "Missing API keys."))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("index_render_failed", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.features)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	st, err := s.tutor.Start(r.Context())
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.tutor.State(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req tutordto.PlayRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, tutordto.ErrorResponse{
			Code:      "bad_request",
			Message:   "request body must be JSON",
			RequestID: GetRequestID(r.Context()),
		})
		return
	}
	summary, err := s.tutor.Play(r.Context(), r.PathValue("id"), req.Move, tutor.PlayOptions{Speak: req.Speak})
	if err != nil {
		s.writeError(w, r, err, req.Move)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) stateAction(fn func(context.Context, string) (*tutordto.State, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := fn(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) handleBoard(asPNG bool) http.HandlerFunc {
	contentType := "image/svg+xml"
	if asPNG {
		contentType = "image/png"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ply := -1
		if raw := r.URL.Query().Get("ply"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				s.writeError(w, r, tutor.ErrPlyOutOfRange, "")
				return
			}
			ply = n
		}
		img, err := s.tutor.Board(r.Context(), r.PathValue("id"), ply, asPNG)
		if err != nil {
			s.writeError(w, r, err, "")
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(img)
	}
}

func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	audio, err := s.tutor.Clip(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	_, _ = w.Write(audio)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, unsubscribe, st, err := s.hub.attach(id, func() (*tutordto.State, error) {
		return s.tutor.State(r.Context(), id)
	})
	if errors.Is(err, errHubClosed) {
		writeJSON(w, http.StatusServiceUnavailable, tutordto.ErrorResponse{
			Code:      "shutting_down",
			Message:   "server is shutting down",
			Retryable: true,
			RequestID: GetRequestID(r.Context()),
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	s.hub.serve(w, r, id, sub, unsubscribe, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, tutordto.ErrorResponse{
				Code:      "bad_request",
				Message:   "limit must be a non-negative integer",
				RequestID: GetRequestID(r.Context()),
			})
			return
		}
		limit = n
	}
	games, err := s.tutor.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	if games == nil {
		games = []tutordto.GameRecord{}
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("gameID"), 10, 64)
	if err != nil {
		s.writeError(w, r, tutor.ErrGameNotFound, "")
		return
	}
	rec, err := s.tutor.Game(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, input string) {
	resp := tutordto.ErrorResponse{RequestID: GetRequestID(r.Context())}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tutor.ErrSessionNotFound):
		status, resp.Code, resp.Message = http.StatusNotFound, "session_not_found", err.Error()
	case errors.Is(err, tutor.ErrClipNotFound):
		status, resp.Code, resp.Message = http.StatusNotFound, "clip_not_found", err.Error()
	case errors.Is(err, tutor.ErrGameNotFound):
		status, resp.Code, resp.Message = http.StatusNotFound, "game_not_found", err.Error()
	case errors.Is(err, tutor.ErrInvalidMove):
		status, resp.Code = http.StatusUnprocessableEntity, "invalid_move"
		resp.Message = s.catalog.Text("tutor.invalid_move", map[string]any{"Input": input}, err.Error())
	case errors.Is(err, tutor.ErrPlyOutOfRange):
		status, resp.Code, resp.Message = http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, tutor.ErrGameOver):
		status, resp.Code, resp.Message = http.StatusConflict, "game_over", err.Error()
	case errors.Is(err, tutor.ErrUndoNotAvailable):
		status, resp.Code, resp.Message = http.StatusConflict, "undo_not_available", err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status, resp.Code, resp.Message = http.StatusGatewayTimeout, "timeout", "request timed out"
		resp.Retryable = true
	default:
		resp.Code, resp.Message = "internal", "internal error"
		resp.Retryable = true
		s.logger.Error("request_failed",
			zap.String("rid", resp.RequestID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
