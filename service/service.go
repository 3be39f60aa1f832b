package service

import "context"

// Service is implemented by everything app.App runs for the lifetime of the
// server, like the web server or the MQTT connection.
type Service interface {
	// Run the Service until the given context.Context is done.
	Run(ctx context.Context) error
}
