package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"whitelistbot/internal/whitelist"

	log "github.com/sirupsen/logrus"
)

// RunServer runs the HTTP server exposing the whitelist commands. This is a blocking call.
func RunServer(port int, svc *whitelist.Service) {
	srv := newServer(port, svc)
	log.Printf("whitelistbot listening on %s\n", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

// RunServerInterruptible runs the server in the background in a Go routine and immediately returns a chan to
// the caller. The caller can then send a signal to the chan to gracefully shutdown the server.
// It's up to the caller to wait for in the main Go routine to keep the server running.
func RunServerInterruptible(port int, svc *whitelist.Service) (stop chan<- struct{}, done <-chan error) {
	srv := newServer(port, svc)

	// one-shot channels for control & completion
	stopCh := make(chan struct{})
	doneCh := make(chan error, 1) // buffered so goroutines can finish without blocking

	go func() {
		log.Printf("whitelistbot listening on %s\n", srv.Addr)
		err := srv.ListenAndServe()
		// http.ErrServerClosed is returned on Shutdown; treat that as clean exit
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			doneCh <- err
			return
		}
		doneCh <- nil
	}()

	go func() {
		<-stopCh
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx) // in-flight commands get time to finish
	}()
	return stopCh, doneCh
}

func newServer(port int, svc *whitelist.Service) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewHandler(svc).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
