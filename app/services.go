package app

import (
	"context"
	"fmt"

	"github.com/ultiscore/ultiscore-server/clocksvc"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/portal"
	"github.com/ultiscore/ultiscore-server/service"
	"github.com/ultiscore/ultiscore-server/web_server"
	"github.com/ultiscore/ultiscore-server/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type services map[string]service.Service

// serviceFunc adapts a plain run function to a service.Service.
type serviceFunc func(ctx context.Context) error

func (fn serviceFunc) Run(ctx context.Context) error {
	return fn(ctx)
}

func createServices(webServer *web_server.WebServer, wsHub *ws.Hub, portalBase portal.Base,
	clockService *clocksvc.Service) services {
	services := make(services)
	// Web server.
	services["web-server"] = webServer
	// Websocket hub.
	services["ws-hub"] = serviceFunc(func(ctx context.Context) error {
		wsHub.Run(ctx)
		return nil
	})
	// MQTT connection if an address is configured.
	if portalBase != nil {
		services["portal"] = serviceFunc(portalBase.Open)
	}
	// Clock device service.
	if clockService != nil {
		services["clock"] = clockService
	}
	return services
}

func (s services) run(ctx context.Context, logger *zap.Logger) error {
	wg, lifetime := errgroup.WithContext(ctx)
	// Run each.
	for name, serviceToRun := range s {
		// Copy values.
		name, serviceToRun := name, serviceToRun
		wg.Go(func() error {
			logger.Debug(fmt.Sprintf("service %s up", name))
			defer logger.Debug(fmt.Sprintf("service %s down", name))
			if err := serviceToRun.Run(lifetime); err != nil {
				return errors.Wrap(err, "run service", errors.Details{"service_name": name})
			}
			return nil
		})
	}
	return wg.Wait()
}
