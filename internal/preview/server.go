package preview

import (
	"errors"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"git.home.luguber.info/inful/sitegen/internal/build"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Preview endpoints.
const (
	LiveReloadPath = "/__livereload"
	ScriptPath     = "/__livereload.js"
	StatusPath     = "/__sitegen/status"
	MetricsPath    = "/__sitegen/metrics"
)

// PortAttempts is how many consecutive ports Listen tries.
const PortAttempts = 10

// NewHandler serves the output directory with the live-reload script
// injected into HTML pages, plus the preview endpoints. metrics may be nil.
func NewHandler(outputDir string, hub *LiveReloadHub, status *Status, state func() build.State, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(LiveReloadPath, hub)
	mux.HandleFunc(ScriptPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(LiveReloadScript))
	})
	mux.Handle(StatusPath, statusHandler(status, state))
	if metrics != nil {
		mux.Handle(MetricsPath, metrics)
	}
	mux.Handle("/", injectLiveReloadScript(noCache(serveSite(outputDir))))
	return mux
}

// serveSite serves dir, answering missing paths with the site's 404.html
// when it has one.
func serveSite(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if strings.HasSuffix(r.URL.Path, "/") {
			target = filepath.Join(target, "index.html")
		}
		if _, err := os.Stat(target); os.IsNotExist(err) {
			// #nosec G304 -- fixed name inside the output directory
			if page, err := os.ReadFile(filepath.Join(dir, "404.html")); err == nil {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write(page)
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// injectLiveReloadScript adds the client script to HTML responses.
func injectLiveReloadScript(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if ext := path.Ext(p); ext != "" && ext != ".html" {
			next.ServeHTTP(w, r)
			return
		}
		// Range requests would be corrupted by the rewrite.
		r.Header.Del("Range")
		injector := &liveReloadInjector{ResponseWriter: w, statusCode: http.StatusOK, maxSize: 4 << 20}
		next.ServeHTTP(injector, r)
		injector.finalize()
	})
}

// liveReloadInjector buffers an HTML response and inserts the script tag
// before </body>. Responses that are not HTML or exceed maxSize pass
// through untouched.
type liveReloadInjector struct {
	http.ResponseWriter
	statusCode    int
	buffer        []byte
	headerWritten bool
	passthrough   bool
	maxSize       int
}

const scriptTag = `<script src="` + ScriptPath + `"></script>`

func (l *liveReloadInjector) WriteHeader(code int) {
	l.statusCode = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.headerWritten = true
	}
}

func (l *liveReloadInjector) Write(data []byte) (int, error) {
	if !l.headerWritten && !l.passthrough && l.buffer == nil {
		contentType := l.ResponseWriter.Header().Get("Content-Type")
		isHTML := contentType == "" || strings.Contains(contentType, "text/html")
		if !isHTML || l.statusCode == http.StatusNotModified {
			l.passthrough = true
			l.ResponseWriter.WriteHeader(l.statusCode)
			l.headerWritten = true
			return l.ResponseWriter.Write(data)
		}
		l.buffer = make([]byte, 0, 64*1024)
	}

	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}

	if len(l.buffer)+len(data) > l.maxSize {
		l.passthrough = true
		l.ResponseWriter.Header().Del("Content-Length")
		l.ResponseWriter.WriteHeader(l.statusCode)
		l.headerWritten = true
		if len(l.buffer) > 0 {
			if _, err := l.ResponseWriter.Write(l.buffer); err != nil {
				return 0, err
			}
		}
		return l.ResponseWriter.Write(data)
	}

	l.buffer = append(l.buffer, data...)
	return len(data), nil
}

func (l *liveReloadInjector) finalize() {
	if l.passthrough || len(l.buffer) == 0 {
		if !l.headerWritten {
			l.ResponseWriter.WriteHeader(l.statusCode)
		}
		return
	}

	page := string(l.buffer)
	if i := strings.LastIndex(strings.ToLower(page), "</body>"); i >= 0 {
		page = page[:i] + scriptTag + page[i:]
	} else {
		page += scriptTag
	}
	l.ResponseWriter.Header().Set("Content-Length", strconv.Itoa(len(page)))
	l.ResponseWriter.WriteHeader(l.statusCode)
	_, _ = l.ResponseWriter.Write([]byte(page))
}

// Listen binds host:port, trying the next ports when it is taken. Port 0
// picks a free port.
func Listen(host string, port, attempts int) (net.Listener, error) {
	if attempts < 1 || port == 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port+i)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if !errors.Is(err, syscall.EADDRINUSE) {
			break
		}
	}
	return nil, ferrors.WrapError(lastErr, ferrors.CategoryRuntime, "no free port for the preview server").
		WithContext("host", host).
		WithContext("port", port).
		WithContext("attempts", attempts).
		Build()
}
