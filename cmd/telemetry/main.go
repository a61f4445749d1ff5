package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/config"
)

const lifecycleTimeout = 30 * time.Second

func appOptions() fx.Option {
	return fx.Options(
		fx.Provide(
			ProvideConfig,
			newLogger,
			ProvideStore,
			ProvideOwnerCache,
			ProvideRegistry,
			ProvideAlarmDetector,
			ProvideMQConnection,
			ProvidePublisher,
			ProvideMirror,
			ProvidePipeline,
			ProvideQueryService,
			ProvideBrokerLink,
			ProvideHTTPServer,
		),
		fx.Invoke(startTelemetry),
	)
}

func main() {
	if path := config.LoadDotEnv(); path != "" {
		fmt.Printf("Loaded environment from: %s\n", path)
	} else {
		fmt.Println("No .env file found, using system environment variables (OK for pods/containers)")
	}

	app := fx.New(
		appOptions(),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Logger for startup errors that happen before the app logger exists
	tempLogger, _ := newLogger(&config.Config{ServiceName: "sensor-telemetry"})
	tempLogger.Info("starting application...", zap.Duration("timeout", lifecycleTimeout))

	startCtx, startCancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			tempLogger.Error("APPLICATION START TIMEOUT: Failed to start within 30 seconds. This usually means a dependency (Database, Redis or RabbitMQ) is not accessible. Check the error messages above for specific connection failures.")
		}
		tempLogger.Fatal("application failed to start", zap.Error(err))
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		tempLogger.Error("error stopping app", zap.Error(err))
	}
}
