package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/nadmax/tracksync/internal/api"
	"github.com/nadmax/tracksync/internal/dashboard"
)

func startStatusServer(addr string, dash *dashboard.Dashboard) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewAPI(dash),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Status server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Status server failed: %v", err)
		}
	}()

	return srv
}

func shutdownStatusServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("failed to shut down status server: %v", err)
	}
}
