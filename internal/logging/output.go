package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single node output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of lines kept per node.
	MaxBufferedLines = 100
)

// OutputHandler collects stdout/stderr lines from one node process.
// It keeps the most recent lines for the exit summary and logs each line.
type OutputHandler struct {
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	total  int
	mu     sync.Mutex
}

// NewOutputHandler creates a new output handler for a node.
// logger should already carry the node's attributes (see ForNode); nil disables logging.
func NewOutputHandler(logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// Writer returns an io.Writer that splits its input into lines tagged with
// stream ("stdout" or "stderr"). Each writer must be used by a single
// goroutine; call Flush on it once the process has exited.
func (h *OutputHandler) Writer(stream string) *StreamWriter {
	return &StreamWriter{handler: h, stream: stream}
}

// HandleLine processes a single line of node output.
func (h *OutputHandler) HandleLine(stream, line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.total++
	h.mu.Unlock()

	h.logLine(stream, line)
}

// logLine logs the line at a level derived from its content.
func (h *OutputHandler) logLine(stream, line string) {
	if h.logger == nil {
		return
	}

	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(context.Background(), level, "node_output",
		"stream", stream,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "panic") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "error") ||
		strings.Contains(lower, "address already in use") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, "warn") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > h.total {
		n = h.total
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// TotalLines returns how many lines have been handled.
func (h *OutputHandler) TotalLines() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// StreamWriter adapts an OutputHandler to io.Writer for one stream.
type StreamWriter struct {
	handler *OutputHandler
	stream  string
	pending []byte
}

// Write buffers p and emits every complete line.
func (w *StreamWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)

	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(w.pending[:i]), "\r")
		w.handler.HandleLine(w.stream, line)
		w.pending = w.pending[i+1:]
	}

	// Unterminated output beyond the limit is emitted as its own line
	if len(w.pending) > MaxLineLength {
		w.handler.HandleLine(w.stream, string(w.pending))
		w.pending = w.pending[:0]
	}

	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *StreamWriter) Flush() {
	if len(w.pending) > 0 {
		w.handler.HandleLine(w.stream, string(w.pending))
		w.pending = nil
	}
}
