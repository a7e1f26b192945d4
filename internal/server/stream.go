package server

import (
	"fmt"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/emiller/vigil/internal/capture"
)

// StreamHandler serves an MJPEG preview sourced from the frame slot.
// Reading the slot instead of the camera keeps preview clients off the
// capture path entirely.
type StreamHandler struct {
	slot *capture.FrameSlot
}

// NewStreamHandler creates a new StreamHandler over the given slot.
func NewStreamHandler(slot *capture.FrameSlot) *StreamHandler {
	return &StreamHandler{slot: slot}
}

// ServeHTTP streams MJPEG frames to the client until it disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var lastSeq uint64

	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		frame, seq, ok := h.slot.Latest()
		if !ok || seq == lastSeq {
			time.Sleep(100 * time.Millisecond)
			if ok {
				frame.Release()
			}
			continue
		}
		lastSeq = seq

		buf, err := gocv.IMEncode(".jpg", frame.Mat)
		frame.Release()
		if err != nil {
			continue
		}

		// Write MJPEG frame
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		w.Write(buf.GetBytes())
		fmt.Fprintf(w, "\r\n")
		buf.Close()

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		time.Sleep(66 * time.Millisecond) // ~15 FPS cap
	}
}
