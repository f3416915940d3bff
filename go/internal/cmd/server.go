package main

import (
	"net/http"
	"time"

	"github.com/mcdev12/roundkeeper/go/internal/contract"
	"github.com/mcdev12/roundkeeper/go/internal/roundapi"
	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(settings Settings, svc *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Round API and live stream
	api := roundapi.NewHandler(roundapi.Config{
		Network:         settings.Network,
		Window:          svc.Round.Window,
		RefreshInterval: svc.Round.RefreshInterval,
		Leaderboard:     svc.Sink,
		Stats:           svc.Scheduler,
		Stream:          svc.Stream,
		Checks:          svc.Checks,
	})
	api.RegisterRoutes(mux)

	// Contract bridge for remote schedulers
	if svc.Bridge != nil {
		path, handler := contract.NewRoundServiceHandler(svc.Bridge)
		mux.Handle(path, handler)
		log.Info().Str("path", path).Msg("serving contract runtime over Connect")
	}

	handler := accessLog(c.Handler(mux))

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func accessLog(next http.Handler) http.Handler {
	withLogger := hlog.NewHandler(log.Logger)
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})
	requestID := hlog.RequestIDHandler("req_id", "Request-Id")
	return withLogger(requestID(access(next)))
}
