package middlewarectx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
)

// RequestObserver принимает итог обработки запроса.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// MetricsMiddleware замеряет длительность и статус каждого запроса.
// Маршрут берётся из шаблона chi, чтобы id в пути не размножали серии.
func MetricsMiddleware(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			observer.ObserveRequest(r.Method, routePattern(r), status, time.Since(start))
		})
	}
}
