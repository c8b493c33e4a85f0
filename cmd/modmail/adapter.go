package main

import (
	"log/slog"

	"github.com/gomodmail/modmail/config"
	"github.com/gomodmail/modmail/platform/memtest"
)

// newPlatformAdapter returns the platform.Adapter this process drives. The
// core only ever consumes platform.Adapter/platform.Listener and never
// imports a concrete chat SDK. A real deployment plugs a gateway-backed
// implementation of both interfaces in here; absent one, the in-memory test
// double is used so the relay is runnable end-to-end (store, registry,
// mirror, scheduler, recovery, dispatch) without a live gateway connection.
func newPlatformAdapter(cfg *config.Config, logger *slog.Logger) (platformHandle, error) {
	logger.Warn("modmail: no chat-platform adapter configured, running against an in-memory test double",
		"hint", "plug in a real platform.Adapter + platform.Listener implementation for production use")
	return memtest.New(), nil
}
