package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/reedgrid/internal/db"
	"github.com/banshee-data/reedgrid/internal/feed"
	"github.com/banshee-data/reedgrid/internal/frame"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultFrameLimit is the number of frames /frames returns without a limit.
const DefaultFrameLimit = 50

// StatsProvider is satisfied by *frame.Assembler.
type StatsProvider interface {
	Stats() frame.Stats
}

type Server struct {
	feed  *feed.Feed
	db    *db.DB
	stats StatsProvider
}

func NewServer(f *feed.Feed, db *db.DB, stats StatsProvider) *Server {
	return &Server{
		feed:  f,
		db:    db,
		stats: stats,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/frames/latest", s.showLatestFrame)
	mux.HandleFunc("/frames", s.listFrames)
	mux.HandleFunc("/stats", s.showStats)
	return mux
}

// AttachAdminRoutes exposes the assembler counters on the tsweb debug page.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Frames assembled", func() any { return s.stats.Stats().Frames })
	debug.KVFunc("Assembler resets", func() any { return s.stats.Stats().Resets })
	debug.HandleFunc("assembler", "assembler counters as JSON", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.stats.Stats())
	})
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showLatestFrame(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rec, ok := s.feed.Latest()
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "No frame received yet")
		return
	}

	if err := json.NewEncoder(w).Encode(FrameToAPI(rec)); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write frame")
		return
	}
}

// parseLimit reads the optional 'limit' query parameter.
func parseLimit(r *http.Request) (int, error) {
	limit := DefaultFrameLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > db.MaxFrameQueryLimit {
			return 0, fmt.Errorf("'limit' must be between 1 and %d", db.MaxFrameQueryLimit)
		}
		limit = parsed
	}
	return limit, nil
}

func (s *Server) listFrames(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid "+err.Error())
		return
	}

	records, err := s.db.RecentFrames(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve frames: %v", err))
		return
	}

	apiFrames := make([]FrameAPI, len(records))
	for i, rec := range records {
		apiFrames[i] = FrameToAPI(rec)
	}

	if err := json.NewEncoder(w).Encode(apiFrames); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write frames")
		return
	}
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid "+err.Error())
		return
	}

	records, err := s.db.RecentFrames(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve frames: %v", err))
		return
	}
	stored, err := s.db.FrameCount()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to count frames: %v", err))
		return
	}
	events, err := s.db.EventCounts()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to count events: %v", err))
		return
	}

	published, dropped := s.feed.Counts()
	resp := StatsAPI{
		Assembler:    s.stats.Stats(),
		Published:    published,
		Dropped:      dropped,
		StoredFrames: stored,
		StoredEvents: events,
		Occupancy:    occupancyOf(records),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
		return
	}
}
