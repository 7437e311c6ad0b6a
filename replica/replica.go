// Package replica assembles the engine and wire layer into a runnable
// PBFT node and exposes the three contracts the operator CLI depends on:
// submit-record (leader only), read-chain, and the Byzantine toggle.
package replica

import (
	"fmt"
	"log"
	"os"

	"pbftledger/chain"
	"pbftledger/engine"
	"pbftledger/wire"
)

// Replica is one PBFT node: an engine plus the TCP listener that feeds it
// inbound messages.
type Replica struct {
	id       int
	port     int
	engine   *engine.Engine
	server   *wire.Server
	liveness *engine.LivenessProbe
	logger   *log.Logger
}

// New builds a replica for id listening on port. The replica has no chain
// until either Start(true) (this replica founds the network) or a
// subsequent Connect to an existing replica syncs genesis.
func New(id, port int) *Replica {
	logger := log.New(os.Stdout, fmt.Sprintf("[peer %d] ", id), log.LstdFlags)
	eng := engine.New(id, port, logger)
	return &Replica{
		id:       id,
		port:     port,
		engine:   eng,
		server:   wire.NewServer(port, eng, logger),
		liveness: engine.NewLivenessProbe(eng),
		logger:   logger,
	}
}

// Start launches the listener and the background liveness prober. When
// genesisOwner is true this replica founds the chain immediately, matching
// the source's "primary owns the chain from instantiation" rule for
// whichever replica starts the network first; joiners should pass false
// and rely on Connect to sync genesis.
func (r *Replica) Start(genesisOwner bool) error {
	if genesisOwner {
		r.engine.Bootstrap()
	}
	if err := r.server.Start(); err != nil {
		return err
	}
	r.liveness.Start()
	return nil
}

// Stop joins the listener goroutine, all in-flight handlers, and the
// liveness prober.
func (r *Replica) Stop() {
	r.liveness.Stop()
	r.server.Stop()
}

// UnreachablePeers lists the ids of peers that failed the most recent
// liveness probe.
func (r *Replica) UnreachablePeers() []int {
	return r.liveness.Unreachable()
}

// Connect performs the bootstrap handshake against a peer already
// listening at host:port: probe, register, sync genesis, link back.
func (r *Replica) Connect(peerID int, host string, port int) error {
	return r.engine.Connect(peerID, host, port)
}

// Submit is the leader-only entry point the operator CLI calls to append
// new data to the ledger.
func (r *Replica) Submit(data string) error {
	return r.engine.Submit(data)
}

// Chain answers the read-chain query. It returns nil if genesis has not
// been synced yet.
func (r *Replica) Chain() *chain.Chain {
	return r.engine.Chain()
}

// ToggleByzantine is the fault-injection entry point; it flips the flag
// and returns its new value.
func (r *Replica) ToggleByzantine() bool {
	return r.engine.ToggleByzantine()
}

// IsByzantine reports the current fault-injection flag.
func (r *Replica) IsByzantine() bool {
	return r.engine.IsByzantine()
}

// IsLeader reports whether this replica is the current primary.
func (r *Replica) IsLeader() bool {
	return r.engine.IsLeader()
}

// ID returns this replica's id.
func (r *Replica) ID() int {
	return r.id
}

// Port returns this replica's listening port.
func (r *Replica) Port() int {
	return r.port
}

// Peers returns a snapshot of known peer id -> port, for the operator's
// list-peers command.
func (r *Replica) Peers() map[int]int {
	all := r.engine.Registry().All()
	out := make(map[int]int, len(all))
	for id, ep := range all {
		out[id] = ep.Port
	}
	return out
}
