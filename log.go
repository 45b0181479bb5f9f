package ivbridge

import (
	"log/slog"
	"sync/atomic"
)

// pkgLogger is initialized before any init function so backend
// registration can log.
var pkgLogger = func() *atomic.Pointer[slog.Logger] {
	p := new(atomic.Pointer[slog.Logger])
	p.Store(slog.New(slog.DiscardHandler))
	return p
}()

// SetLogger sets the logger used by the registry and by interpreters and
// sessions created without an explicit logger. A nil logger discards output.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	pkgLogger.Store(l)
}

// Logger returns the package logger.
func Logger() *slog.Logger { return pkgLogger.Load() }
