package handler

import (
	"errors"
	"io"
	"net/http"
)

// ServeHTTP serves the same endpoint over plain HTTP, flushing after every
// chunk so event streams reach the client as they arrive.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		body = nil
	}

	resp := h.serve(r.Context(), r.Method, r.Header.Get, body)
	defer func() { _ = resp.body.Close() }()

	for k, v := range resp.headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.status)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				h.logger.Warn("client went away", "err", writeErr)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(readErr, io.EOF) {
			return
		}
		if readErr != nil {
			h.logger.Error("response stream failed", "err", readErr)
			return
		}
	}
}
