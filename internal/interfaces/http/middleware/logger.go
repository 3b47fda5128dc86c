package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// probePaths — эндпоинты, которые дергают оркестраторы и балансировщики.
// Их логируем на Debug, чтобы не засорять журнал.
var probePaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// Logger логирует каждый завершенный HTTP запрос: метод, путь,
// статус, объем ответа и длительность
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			if probePaths[r.URL.Path] {
				log.Debug("probe request", fields...)
				return
			}
			log.Info("http request", fields...)
		})
	}
}

// responseRecorder перехватывает статус и объем ответа
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *responseRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *responseRecorder) Write(p []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(p)
	rec.bytes += n
	return n, err
}

// Hijack пробрасывает захват соединения, без него не работает
// апгрейд до WebSocket
func (rec *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}
