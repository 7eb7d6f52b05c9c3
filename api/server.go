package api

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	gorillarpc "github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json2"
	"github.com/rs/cors"

	"github.com/ava-labs/fedimint/utils/logging"
)

// NewServer wires the JSON-RPC Service and the accept event feed behind
// gorilla/mux routing, gorilla/handlers request logging and panic
// recovery, and rs/cors — the same middleware stack shape the rest of this
// corpus's HTTP-facing services use.
func NewServer(svc *Service, feed *EventFeed, log *logging.Logger) http.Handler {
	rpcServer := gorillarpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(svc, ""); err != nil {
		log.Error("failed to register api service: %v", err)
	}

	router := mux.NewRouter()
	router.Handle("/rpc", rpcServer).Methods(http.MethodPost)
	router.HandleFunc("/events", feed.ServeHTTP)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)

	logged := handlers.CombinedLoggingHandler(logWriter{log}, corsHandler)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(logged)
}

// logWriter adapts *logging.Logger to io.Writer for gorilla/handlers'
// access-log output.
type logWriter struct {
	log *logging.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Info("%s", trimNewline(p))
	return len(p), nil
}

func trimNewline(p []byte) string {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		return string(p[:n-1])
	}
	return string(p)
}

// ListenAndServe is a thin convenience wrapper around a fixed-timeout
// http.Server.
func ListenAndServe(addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
