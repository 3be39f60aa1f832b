package app

import (
	"encoding/json"
	nativeerrors "errors"
	"os"

	"github.com/gobuffalo/nulls"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/logging"
	"github.com/ultiscore/ultiscore-server/web_server"
)

// Config is the configuration needed in order to boot an App.
type Config struct {
	// DBConn is the connection string for the PostgreSQL database.
	DBConn string `json:"db_conn"`
	// ServeAddr is the address the HTTP API listens on.
	ServeAddr string `json:"serve_addr"`
	// MQTTAddr is the optional address of the venue MQTT broker. Without it the
	// server runs with websocket live updates only.
	MQTTAddr nulls.String `json:"mqtt_addr"`
	// ClockDeviceToken is the optional token stadium clock devices authenticate
	// with. Requires MQTTAddr.
	ClockDeviceToken nulls.String `json:"clock_device_token"`
	// Log is the logging configuration.
	Log logging.Config `json:"log"`
}

// LoadConfig reads the Config from the JSON file at the given path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewInternalErrorFromErr(err, "read config file", errors.Details{"path": path})
	}
	var config Config
	err = json.Unmarshal(raw, &config)
	if err != nil {
		return Config{}, errors.NewInternalErrorFromErr(err, "parse config file", errors.Details{"path": path})
	}
	if config.ServeAddr == "" {
		config.ServeAddr = web_server.DefaultServeAddr
	}
	return config, nil
}

// ValidateConfig checks the given Config for invalid or missing entries.
func ValidateConfig(config Config) error {
	if config.DBConn == "" {
		return nativeerrors.New("missing db connection string")
	}
	if config.ClockDeviceToken.Valid && !config.MQTTAddr.Valid {
		return nativeerrors.New("clock device token requires mqtt addr")
	}
	return nil
}
