// brickstub serves a local stand-in for the remote backend: the job protocol
// plus collaboration rooms. Point bricksyncd's API_BASE_URL and COLLAB_URL at
// it for offline development.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bricksync/internal/devserver"
	"bricksync/pkg/logging/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("brickstub exited with error: %v", err)
	}
}

func run() error {
	logger := logging.DefaultLogger()
	defer logger.Sync()

	port := getenv("PORT", "8000")
	delay := 2 * time.Second
	if v := os.Getenv("JOB_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			delay = time.Duration(n) * time.Second
		}
	}

	srv := devserver.New(logger)
	srv.Delay = delay
	srv.Token = os.Getenv("API_TOKEN")

	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting backend stub",
		zap.String("addr", httpSrv.Addr),
		zap.Duration("job_delay", delay),
	)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
