package natsqueue

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Embedded is an in-process NATS server with JetStream enabled, used when no
// external NATS_URL is configured.
type Embedded struct {
	Server *server.Server
	Conn   *nats.Conn
}

// StartEmbedded starts a server on a random port storing JetStream data in
// storeDir, and connects to it.
func StartEmbedded(storeDir string) (*Embedded, error) {
	ns, err := server.NewServer(&server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect to embedded NATS: %w", err)
	}
	return &Embedded{Server: ns, Conn: nc}, nil
}

func (e *Embedded) Shutdown() {
	if err := e.Conn.Drain(); err != nil {
		e.Conn.Close()
	}
	e.Server.Shutdown()
	e.Server.WaitForShutdown()
}
