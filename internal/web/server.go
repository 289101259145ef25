package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"github.com/srikanta2006/smart-parking/internal/ratelimit"
	"github.com/srikanta2006/smart-parking/internal/receipt"
	"github.com/srikanta2006/smart-parking/internal/slots"
)

const (
	msgReserved         = "Slot reserved successfully"
	msgNotAvailable     = "Slot not available"
	msgNotFound         = "Not found"
	msgStoreUnavailable = "Slot store unavailable"
	msgInternal         = "Internal server error"
	msgTooManyRequests  = "Too many requests"
	msgNoReservation    = "No reservation found"
	msgMethodNotAllowed = "Method not allowed"
)

type Server struct {
	Slots *slots.Service

	// Optional collaborators; nil disables the feature.
	Receipts *receipt.Codec
	Limiter  *ratelimit.Store

	TrustXForwardedFor bool
	CORSAllowedOrigins []string

	Logger *log.Logger
}

func (s *Server) Routes() http.Handler {
	limit := ratelimit.Middleware(ratelimit.Options{
		Store:              s.Limiter,
		TrustXForwardedFor: s.TrustXForwardedFor,
		OnReject: func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, msgTooManyRequests)
		},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /parking-slots", limit(http.HandlerFunc(s.handleListSlots)))
	mux.Handle("POST /reserve-slot/{slot_id}", limit(http.HandlerFunc(s.handleReserveSlot)))
	if s.Receipts != nil {
		mux.HandleFunc("GET /my-reservation", s.handleMyReservation)
	}

	origins := s.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Confirmation-Number", "X-Request-ID"},
	})

	return logging(s.logger(), c.Handler(jsonFallback(mux)))
}

// jsonFallback rewrites the mux's own 404 and 405 replies as JSON errors.
// Responses from registered routes pass through untouched.
func jsonFallback(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(&fallbackWriter{ResponseWriter: w}, r)
	})
}

type fallbackWriter struct {
	http.ResponseWriter
	replaced bool
}

func (f *fallbackWriter) WriteHeader(code int) {
	switch code {
	case http.StatusNotFound:
		f.replaced = true
		writeError(f.ResponseWriter, code, msgNotFound)
	case http.StatusMethodNotAllowed:
		f.replaced = true
		writeError(f.ResponseWriter, code, msgMethodNotAllowed)
	default:
		f.ResponseWriter.WriteHeader(code)
	}
}

func (f *fallbackWriter) Write(p []byte) (int, error) {
	if f.replaced {
		return len(p), nil
	}
	return f.ResponseWriter.Write(p)
}

func (s *Server) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default()
	}
	return s.Logger
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.Slots.Ping(r.Context()); err != nil {
		s.logger().Printf("healthz: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	list, err := s.Slots.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleReserveSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSlotID(r.PathValue("slot_id"))
	if !ok {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}

	res, err := s.Slots.Reserve(r.Context(), id)
	if err != nil {
		if errors.Is(err, slots.ErrUnavailable) {
			// not_found and occupied share one response so callers cannot
			// probe which slot ids exist.
			s.logger().Printf("reserve slot %d rejected: %s", id, slots.ReasonOf(err))
		}
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("X-Confirmation-Number", res.Confirmation)
	if s.Receipts != nil {
		rc := receipt.Receipt{SlotID: res.Slot.ID, Confirmation: res.Confirmation, ReservedAt: res.ReservedAt}
		if err := s.Receipts.Set(w, r, rc); err != nil {
			s.logger().Printf("reserve slot %d: set receipt: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msgReserved})
}

func (s *Server) handleMyReservation(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.Receipts.Get(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNoReservation)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slots.ErrUnavailable):
		writeError(w, http.StatusBadRequest, msgNotAvailable)
	case errors.Is(err, slots.ErrInvalidSlotID):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, slots.ErrStoreUnavailable):
		s.logger().Printf("store error: %v", err)
		writeError(w, http.StatusServiceUnavailable, msgStoreUnavailable)
	default:
		s.logger().Printf("unexpected error: %v", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// parseSlotID accepts only plain decimal digits, mirroring an integer path
// converter: signs, spaces and overflow are rejected.
func parseSlotID(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func Start(ctx context.Context, addr string, h http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()
	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
