package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayusman/formcoach/internal/overlay"
)

// StreamHandler serves the annotated camera feed as MJPEG.
type StreamHandler struct {
	frames *overlay.Broadcaster
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames *overlay.Broadcaster) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams MJPEG frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Streams outlive the server write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var seq uint64
	for {
		frame, next, err := h.frames.Next(r.Context(), seq)
		if err != nil {
			return
		}
		seq = next

		// Write MJPEG frame
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if err := rc.Flush(); err != nil {
			return
		}
	}
}
