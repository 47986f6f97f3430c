package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/destekhq/support-platform/pkg/protocol"
	"github.com/destekhq/support-platform/pkg/variables"
)

type httpServer_Params struct {
	fx.In

	Lifecycle   fx.Lifecycle
	Controllers []protocol.HttpResolvable `group:"http.controller"`
	Logger      *slog.Logger
}

func httpErrorHandler(e *echo.Echo, logger *slog.Logger) func(err error, c echo.Context) {
	return func(err error, c echo.Context) {
		logger.Error(err.Error(), slog.String("request", fmt.Sprintf("%+v", c.Request())))
		e.DefaultHTTPErrorHandler(err, c)
	}
}

// httpServer assembles the router and serves it from an OnStart hook. The
// listener runs in its own goroutine so the remaining lifecycle hooks, the
// scheduler among them, still get to start.
func httpServer(params httpServer_Params) error {
	router := echo.New()
	router.HTTPErrorHandler = httpErrorHandler(router, params.Logger)

	origins := variables.Env(variables.ALLOWED_ORIGINS_NAME, variables.ALLOWED_ORIGINS_DEFAULT)
	router.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     splitOrigins(origins),
		AllowCredentials: origins != "*",
	}))

	for _, controller := range params.Controllers {
		if err := controller.Resolve(router); err != nil {
			return fmt.Errorf("unable resolve controller: %w", err)
		}
	}

	addr := fmt.Sprintf(":%s", variables.Env(variables.HTTP_PORT_NAME, variables.HTTP_PORT_DEFAULT))
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := router.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					params.Logger.Error("http server stopped", slog.String("err", err.Error()))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return router.Shutdown(ctx)
		},
	})
	return nil
}

func splitOrigins(origins string) []string {
	if origins == "" || origins == "*" {
		return []string{"*"}
	}
	var result []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			result = append(result, o)
		}
	}
	return result
}

var HttpModule = fx.Module("http", fx.Invoke(httpServer))
