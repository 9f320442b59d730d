package live

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"momentumengine/src/auth"
	"momentumengine/src/database"
	"momentumengine/src/executors"
	"momentumengine/src/server"
)

type Live struct {
	Log *logrus.Entry
}

// Start runs the live loop and the status API until SIGINT or SIGTERM.
func (l *Live) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		l.Log.WithError(err).Error("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		l.Log.WithError(err).Error("Failed to connect to read-only database")
		return err
	}

	loop, err := executors.NewFromEnv(ctx)
	if err != nil {
		l.Log.WithError(err).Error("Failed to configure live loop")
		return err
	}

	if cfg := server.GetConfig(); cfg.Enabled {
		router := server.NewRouter(loop.Book(), auth.GetConfig().StatusTokenHash)
		go func() {
			if err := server.StartServer(ctx, cfg.Port, router); err != nil {
				l.Log.WithError(err).Error("status API stopped")
			}
		}()
	}

	if err := loop.Run(ctx); err != nil {
		l.Log.WithError(err).Error("Live loop stopped with error")
		return err
	}
	return nil
}
