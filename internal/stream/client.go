package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skywatch/trackd/internal/metrics"
)

// writeGrace is how long a single SSE write may block before the connection
// is considered dead.
const writeGrace = 30 * time.Second

// client wraps one SSE connection's write side.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// emit writes one SSE frame and flushes it, rearming the write deadline
// first so slow consumers get disconnected instead of wedging the stream.
func (c *client) emit(format string, args ...any) (int, error) {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeGrace)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprintf(c.w, format, args...)
	if err != nil {
		return n, err
	}
	c.flusher.Flush()

	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	return n, nil
}

// sendJSON marshals v and sends it as an SSE data message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.sendRaw(data)
}

// sendRaw sends pre-marshaled JSON as an SSE data message ("data: {...}\n\n").
func (c *client) sendRaw(data []byte) error {
	if _, err := c.emit("data: %s\n\n", data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	return nil
}

// sendKeepalive sends an SSE comment line (":\n\n") to hold the connection open.
func (c *client) sendKeepalive() error {
	if _, err := c.emit(":\n\n"); err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}
	return nil
}
