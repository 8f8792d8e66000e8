package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() {
	logEveryRequest := false
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if logEveryRequest {
				s.Log.Infof("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	// We don't need httprate.KeyByEndpoint, because we create a unique rate limiter for each endpoint.
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		if requestLimit <= 0 {
			www.Handle(s.Log, router, method, route, handle)
			return
		}
		limited := httprate.Limit(requestLimit, windowLength,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				sendError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			}))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	ratelimited("POST", "/api/analyze", s.httpAnalyze, s.config.RateLimitPerMinute, time.Minute)
	handle("GET", "/api/analyses", s.httpListAnalyses)
	handle("GET", "/api/analyses/:id", s.httpGetAnalysis)
	handle("GET", "/api/analyses/:id/preview", s.httpGetPreview)

	s.httpRouter = router
}
