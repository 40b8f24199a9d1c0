package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/ChattingLord/roomlink/internal/config"
	"github.com/ChattingLord/roomlink/internal/logging"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level = logging.ParseLevel(v)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// LoggerModule provides the relay's JSON logger.
var LoggerModule = fx.Module("logger", fx.Provide(newLogger))

func httpErrorHandler(e *echo.Echo, logger *slog.Logger) func(err error, c echo.Context) {
	return func(err error, c echo.Context) {
		logger.Error(err.Error(), slog.String("path", c.Request().URL.Path))
		e.DefaultHTTPErrorHandler(err, c)
	}
}

func newRouter(logger *slog.Logger) *echo.Echo {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.HTTPErrorHandler = httpErrorHandler(router, logger)
	return router
}

type server_Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Hub       *Hub
	Router    *echo.Echo
	Logger    *slog.Logger
}

func server(params server_Params) {
	ctx, cancel := context.WithCancel(context.Background())
	addr := fmt.Sprintf(":%s", params.Config.ListenPort)

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go params.Hub.Run(ctx)
			go func() {
				params.Logger.Info("relay listening", slog.String("addr", addr))
				if err := params.Router.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					params.Logger.Error("relay stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return params.Router.Shutdown(stopCtx)
		},
	})
}

// Module wires the hub, the router, and the HTTP server lifecycle. It needs a
// *config.Config supplied by the caller.
var Module = fx.Module("relay",
	fx.Provide(NewHub, newRouter),
	fx.Invoke(RegisterRoutes, server),
)
