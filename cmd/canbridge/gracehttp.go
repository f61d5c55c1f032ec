package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"
)

type HttpServer struct {
	Server   *http.Server
	shutdown chan struct{}
}

func (s *HttpServer) ListenAndServe() (err error) {
	if s.shutdown == nil {
		s.shutdown = make(chan struct{})
	}

	err = s.Server.ListenAndServe()
	if err == http.ErrServerClosed {
		err = nil
	} else if err != nil {
		return fmt.Errorf("unexpected error from ListenAndServe: %w", err)
	}

	log.Debugln("waiting for shutdown finishing...")
	<-s.shutdown
	log.Debugln("shutdown finished")

	return
}

func (s *HttpServer) WaitExitSignal(timeout time.Duration) {
	waiter := make(chan os.Signal, 1)
	signal.Notify(waiter, os.Interrupt)

	<-waiter

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Server.Shutdown(ctx); err != nil {
		log.Errorln("shutting down: " + err.Error())
	} else {
		log.Debugln("shutdown processed successfully")
		close(s.shutdown)
	}
}
