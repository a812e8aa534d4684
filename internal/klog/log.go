package klog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"
)

// DefaultLogger is the global, non-ISR kernel logger. Components call it
// once at init and keep the result; it does not change at runtime.
var DefaultLogger = func() *Logger { return NewFormattedLogger(os.Stderr) }

// SetDefault overrides the default slog logger.
var SetDefault = slog.SetDefault

// Level is a package-scoped variable so a running kernel can raise or
// lower verbosity (e.g. from a debug system call) without restarting.
var Level = &slog.LevelVar{}

// NewFormattedLogger returns a Logger writing human-readable records to out.
func NewFormattedLogger(out io.Writer) *Logger {
	return slog.New(NewHandler(out))
}

// Handler implements slog.Handler with a plain key/value block format,
// grounded on the structured-logging idiom the rest of the pack uses for
// kernel-adjacent services (each record: one line per field, uppercased
// keys, optional source location).
type Handler struct {
	mut *sync.Mutex
	out io.Writer

	opts  *slog.HandlerOptions
	group string
	attrs []slog.Attr
}

// Options are the handler's fixed options: source location attached,
// level gated by the package Level var.
var Options = &slog.HandlerOptions{
	AddSource:   true,
	Level:       Level,
	ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr { return a },
}

// NewHandler builds a Handler writing to out.
func NewHandler(out io.Writer) *Handler {
	return &Handler{out: out, mut: new(sync.Mutex), opts: Options}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *Handler) Handle(_ context.Context, rec slog.Record) error {
	buf := bytes.NewBuffer(make([]byte, 0, 512))

	if !rec.Time.IsZero() {
		fmt.Fprintf(buf, "%10s : %s\n", "TIME", rec.Time.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(buf, "%10s : %s\n", "LEVEL", rec.Level.String())

	if h.opts.AddSource && rec.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{rec.PC})
		f, _ := frames.Next()
		_, file := path.Split(f.File)
		fmt.Fprintf(buf, "%10s : %s:%d\n", "SOURCE", file, f.Line)
	}

	fmt.Fprintf(buf, "%10s : %s\n", "MESSAGE", rec.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})
	fmt.Fprintln(buf)

	h.mut.Lock()
	defer h.mut.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *Handler) appendAttr(out io.Writer, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	attr = h.opts.ReplaceAttr(nil, attr)
	if attr.Equal(slog.Attr{}) {
		return
	}
	fmt.Fprintf(out, "%10s : %v\n", strings.ToUpper(attr.Key), attr.Value.Any())
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	attrs := make([]slog.Attr, len(h.attrs))
	copy(attrs, h.attrs)
	return &Handler{mut: h.mut, out: h.out, opts: h.opts, attrs: attrs, group: name}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{out: h.out, mut: h.mut, opts: h.opts, attrs: merged}
}

// Logger is the kernel's non-ISR logging handle.
type Logger = slog.Logger

const (
	Debug = slog.LevelDebug
	Info  = slog.LevelInfo
	Warn  = slog.LevelWarn
	Error = slog.LevelError
)
