package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const closeWriteWait = 5 * time.Second

// uploadValidationSession receives a PDF as a single binary message, validates it and streams
// every status back. The connection closes after the terminal status.
func (h *handler) uploadValidationSession(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	key := uuid.NewString()
	logCtx := h.log.With().Str("session", key).Logger()
	if h.opts.MaxUploadBytes > 0 {
		conn.SetReadLimit(h.opts.MaxUploadBytes)
	}

	path, err := receiveDocument(conn, h.opts.ScratchDir, key)
	if path != "" {
		defer os.Remove(path)
	}
	if err != nil {
		logCtx.Warn().Err(err).Msg("Failed to receive document over WebSocket")
		closeWithStatus(conn, websocket.CloseUnsupportedData, "unable to receive document")
		return
	}

	h.deps.Validation.ValidateFile(r.Context(), key, path, statusWriter(conn, logCtx))
}

// locationValidationSession validates a published document and streams every status back.
func (h *handler) locationValidationSession(w http.ResponseWriter, r *http.Request) {
	_, location, ok := h.location(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logCtx := h.log.With().Str("location", location).Logger()
	if _, err := h.deps.Validation.ValidateLocation(r.Context(), location, statusWriter(conn, logCtx)); err != nil {
		logCtx.Warn().Err(err).Msg("Location validation failed")
		closeWithStatus(conn, websocket.CloseInternalServerErr, fmt.Sprintf("%d %s", apperr.StatusCode(err), http.StatusText(apperr.StatusCode(err))))
	}
}

// receiveDocument writes the first binary message to a scratch file and returns its path.
func receiveDocument(conn *websocket.Conn, dir, key string) (string, error) {
	messageType, r, err := conn.NextReader()
	if err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	if messageType != websocket.BinaryMessage {
		return "", fmt.Errorf("expected a binary message, got type %d", messageType)
	}

	f, err := os.CreateTemp(dir, key+"-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}
	path := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return path, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("failed to close scratch file: %w", err)
	}
	return path, nil
}

// statusWriter sends each status as JSON. Write failures are logged only; validation runs to
// completion even if the client has gone away.
func statusWriter(conn *websocket.Conn, log zerolog.Logger) func(models.ValidationStatus) {
	gone := false
	return func(status models.ValidationStatus) {
		if gone {
			return
		}
		if err := conn.WriteJSON(status); err != nil {
			log.Debug().Err(err).Msg("Client stopped receiving validation updates")
			gone = true
			return
		}
		if status.Terminal() {
			closeWithStatus(conn, websocket.CloseNormalClosure, "validation complete")
		}
	}
}

func closeWithStatus(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
}
