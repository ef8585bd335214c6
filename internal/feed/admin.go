package feed

import (
	"fmt"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the frame debugging endpoints under /debug/.
// These routes are accessible only over localhost or Tailscale.
func (f *Feed) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Frames published", func() any {
		published, _ := f.Counts()
		return published
	})
	debug.KVFunc("Frame subscribers", func() any { return f.Subscribers() })

	debug.HandleFunc("frame", "latest frame as a text grid", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := f.Latest()
		if !ok {
			http.Error(w, "no frame yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s  %s\n\n%s\n", rec.ID, rec.CapturedAt.Format("2006-01-02T15:04:05.000Z07:00"), rec.Frame)
	})

	// Server-Sent Events stream of every frame as it is published.
	debug.HandleSilentFunc("frames/tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := f.Subscribe()
		defer f.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case rec, ok := <-c:
				if !ok {
					return
				}
				rows := strings.ReplaceAll(rec.Frame.String(), "\n", "/")
				if _, err := fmt.Fprintf(w, "id: %s\ndata: %s\n\n", rec.ID, rows); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
