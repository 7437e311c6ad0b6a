package engine

import (
	"fmt"

	"pbftledger/chain"
	"pbftledger/metrics"
	"pbftledger/registry"
	"pbftledger/wire"
)

// Connect performs the full bootstrap handshake against a peer at
// host:port: it probes connectivity, records the peer, syncs genesis in
// whichever direction is needed, and asks the peer to link back so the
// join becomes bidirectional without a second manual connect.
func (e *Engine) Connect(peerID int, host string, port int) error {
	if err := wire.Probe(host, port); err != nil {
		return fmt.Errorf("failed to connect to peer %d on port %d: %w", peerID, port, err)
	}

	added := e.registry.Add(peerID, registry.Endpoint{Host: host, Port: port})
	if added {
		e.RecomputePrimary()
	}
	e.logger.Printf("connected to peer %d on port %d", peerID, port)

	if err := e.syncGenesis(peerID, host, port); err != nil {
		e.logger.Printf("genesis sync with peer %d failed: %v", peerID, err)
	}

	if id, err := wire.SendConnectBack(host, port, e.id, e.port); err != nil {
		e.logger.Printf("failed to send connect_back %s to peer %d: %v", id, peerID, err)
	}
	return nil
}

// syncGenesis implements the bidirectional genesis handshake: a replica
// with no chain requests genesis from the peer; a replica that already
// has a chain proactively pushes its genesis so the new peer can
// initialize deterministically without a round trip.
func (e *Engine) syncGenesis(peerID int, host string, port int) error {
	e.mu.Lock()
	hasChain := e.chain != nil
	var ownGenesis wire.GenesisPayload
	if hasChain {
		g := e.chain.GenesisRecord()
		ownGenesis = wire.GenesisPayload{Index: g.Index, Timestamp: g.Timestamp, Data: g.Data, PrevDigest: g.PrevDigest}
	}
	e.mu.Unlock()

	if hasChain {
		if id, err := wire.SendGenesis(host, port, ownGenesis); err != nil {
			return fmt.Errorf("send genesis %s to peer %d: %w", id, peerID, err)
		}
		return nil
	}

	g, err := wire.RequestGenesis(host, port)
	if err != nil {
		return fmt.Errorf("request genesis from peer %d: %w", peerID, err)
	}
	e.mu.Lock()
	if e.chain == nil {
		e.chain = chain.FromGenesis(g.Index, g.Timestamp, g.Data, g.PrevDigest)
		metrics.ChainLength.Set(float64(e.chain.Len()))
		e.logger.Printf("genesis synced from peer %d", peerID)
	}
	e.mu.Unlock()
	return nil
}
