package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyState      = "state"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyPage       = "page"
	KeyTemplate   = "template"
	KeyEntity     = "entity"
	KeyLanguage   = "language"
	KeyCacheKey   = "cache_key"
	KeyCount      = "count"
	KeyCode       = "code"
	KeyURL        = "url"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Page(p string) slog.Attr         { return slog.String(KeyPage, p) }
func Template(name string) slog.Attr  { return slog.String(KeyTemplate, name) }
func Entity(id string) slog.Attr      { return slog.String(KeyEntity, id) }
func Language(l string) slog.Attr     { return slog.String(KeyLanguage, l) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Code(c string) slog.Attr         { return slog.String(KeyCode, c) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }

// CacheKey logs the first 12 characters of a content hash.
func CacheKey(k string) slog.Attr {
	if len(k) > 12 {
		k = k[:12]
	}
	return slog.String(KeyCacheKey, k)
}

// Duration logs d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return DurationMS(float64(d.Microseconds()) / 1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
