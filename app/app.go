// Package app boots a complete ultiscore server instance from a Config.
package app

import (
	"context"

	"github.com/ultiscore/ultiscore-server/auth"
	"github.com/ultiscore/ultiscore-server/clocksvc"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/gamesvc"
	"github.com/ultiscore/ultiscore-server/logging"
	"github.com/ultiscore/ultiscore-server/portal"
	"github.com/ultiscore/ultiscore-server/statepublish"
	"github.com/ultiscore/ultiscore-server/store"
	"github.com/ultiscore/ultiscore-server/web_server"
	"github.com/ultiscore/ultiscore-server/ws"
	"go.uber.org/zap"
)

// App is a complete ultiscore server instance.
type App struct {
	// config is the main config used for the App.
	config Config
}

func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and runs until the given
// context.Context is done.
func (app *App) Boot(ctx context.Context) error {
	// Validate config.
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "invalid config",
		}
	}
	// Setup logger.
	logger := logging.NewLogger(app.config.Log)
	defer func(loggerToSync *zap.Logger) {
		_ = loggerToSync.Sync()
	}(logger)
	// Boot.
	err = app.boot(ctx, logger)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context, logger *zap.Logger) error {
	logger.Info("booting up")
	// Connect database.
	logger.Debug("connecting to database")
	db, err := connectDB(ctx, logger.Named("db"), app.config.DBConn, defaultMaxDBConnections)
	if err != nil {
		return errors.Wrap(err, "connect database", nil)
	}
	defer db.Close()
	logger.Debug("database ready")
	mall := store.NewMall(logger.Named("store"), db)
	// Create auth service.
	authService := auth.NewService(logger.Named("auth"), mall)
	// Create websocket hub.
	wsHub := ws.NewHub(logger.Named("ws"))
	// Create portal base if an MQTT address is provided.
	var portalBase portal.Base
	var publishPortal portal.Portal
	if app.config.MQTTAddr.Valid {
		portalBase, err = portal.NewBase(logger.Named("portal"), portal.Config{MQTTAddr: app.config.MQTTAddr.String})
		if err != nil {
			return errors.Wrap(err, "new portal base", nil)
		}
		publishPortal = portalBase.NewPortal("state-publish")
	}
	// Create state publisher and game engine.
	publisher := statepublish.NewPublisher(logger.Named("state-publish"), publishPortal, wsHub)
	engine := gamesvc.NewService(logger.Named("games"), mall, publisher)
	// Create clock device service if a device token is configured. ValidateConfig
	// assures that an MQTT address is set then.
	var clockService *clocksvc.Service
	if app.config.ClockDeviceToken.Valid {
		clockService = clocksvc.NewService(logger.Named("clock"), portalBase.NewPortal("clock"), authService,
			engine, app.config.ClockDeviceToken.String)
	}
	// Create web server.
	webServer, err := web_server.NewWebServer(logger.Named("web-server"), web_server.Config{
		ServeAddr:    app.config.ServeAddr,
		WriteTimeout: web_server.DefaultWriteTimeout,
		ReadTimeout:  web_server.DefaultReadTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create web server", nil)
	}
	webServer.PopulateRoutes(engine, authService, wsHub)
	logger.Debug("setup completed. booting services...")
	// Run everything until the context is done.
	return createServices(webServer, wsHub, portalBase, clockService).run(ctx, logger)
}
