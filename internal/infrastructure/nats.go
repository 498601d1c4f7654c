package infrastructure

import (
	"github.com/nats-io/nats.go"

	"fable/internal/config"
)

// connectNats returns (nil, nil) when the bus is disabled in config; the
// app then runs without event publishing or the NATS event handler.
func connectNats(cfg *config.Config) (*nats.Conn, error) {
	url, err := cfg.NatsAddr()
	if err != nil {
		return nil, nil
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	return nc, nil
}
