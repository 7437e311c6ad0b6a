// Package engine implements the PBFT state machine: the proposal tables,
// the phase transitions, and the Byzantine/duplicate guards. One Engine
// owns exactly one replica's registry, chain and in-flight vote tables;
// the chain and vote tables sit behind a single coarse lock (the registry
// carries its own), matching the teacher's bft.BFTNode
// locking discipline — critical sections are short, I/O happens outside
// the lock.
package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"pbftledger/chain"
	"pbftledger/metrics"
	"pbftledger/registry"
	"pbftledger/wire"
)

// proposalState tracks the votes collected so far for one proposal key
// (the record's timestamp).
type proposalState struct {
	preprepare      *chain.Record
	prepareBy       map[int]bool
	commitBy        map[int]bool
	commitBroadcast bool
}

func newProposalState() *proposalState {
	return &proposalState{prepareBy: make(map[int]bool), commitBy: make(map[int]bool)}
}

// Engine is a single replica's PBFT state machine.
type Engine struct {
	mu sync.Mutex

	id       int
	port     int
	view     int
	registry *registry.Registry
	chain    *chain.Chain // nil until genesis is created or synced

	proposals map[int64]*proposalState
	committed map[int64]bool

	isByzantine bool

	logger *log.Logger
}

// New builds an engine for replica id listening on port, with no peers
// and no chain yet (a follower waiting for genesis sync).
func New(id, port int, logger *log.Logger) *Engine {
	return &Engine{
		id:        id,
		port:      port,
		registry:  registry.New(),
		proposals: make(map[int64]*proposalState),
		committed: make(map[int64]bool),
		logger:    logger,
	}
}

// Bootstrap initializes this engine's chain as the genesis owner. Only the
// replica that starts the network before anyone else joins should call
// this; every other replica acquires its chain via genesis sync during
// Connect.
func (e *Engine) Bootstrap() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chain == nil {
		e.chain = chain.Genesis()
		metrics.ChainLength.Set(float64(e.chain.Len()))
	}
}

func (e *Engine) primaryID() int {
	return e.view % e.registry.TotalPeers()
}

// IsLeader reports whether this replica is the current view's primary.
func (e *Engine) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id == e.primaryID()
}

// PrimaryID returns the current primary's id.
func (e *Engine) PrimaryID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.primaryID()
}

// View returns the current view number.
func (e *Engine) View() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// ID returns this replica's id.
func (e *Engine) ID() int {
	return e.id
}

// ToggleByzantine flips the fault-injection flag and returns its new
// value.
func (e *Engine) ToggleByzantine() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isByzantine = !e.isByzantine
	return e.isByzantine
}

// IsByzantine reports the current fault-injection flag.
func (e *Engine) IsByzantine() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isByzantine
}

// Chain returns a snapshot of the current chain, or nil if genesis has
// not been synced yet.
func (e *Engine) Chain() *chain.Chain {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chain == nil {
		return nil
	}
	// Records are never mutated after Append, so a copy of the slice
	// header taken under the lock is a stable view of the chain so far.
	snap := *e.chain
	return &snap
}

// Registry exposes the peer registry for bootstrap/connect logic.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// RecomputePrimary is called after the peer registry grows. The primary id
// is not stored: primaryID derives it from view and the current
// total_peers on every call, so this only refreshes the total-peers gauge.
func (e *Engine) RecomputePrimary() {
	e.mu.Lock()
	defer e.mu.Unlock()
	metrics.TotalPeers.Set(float64(e.registry.TotalPeers()))
}

// ErrNotLeader is returned by Submit when called on a non-primary replica.
var ErrNotLeader = fmt.Errorf("not primary")

// ErrChainNotInitialized is returned by Submit before genesis sync.
var ErrChainNotInitialized = fmt.Errorf("chain not initialized")

// Submit constructs a record from data and broadcasts a pre-prepare to
// every peer. It is the leader-only entry point the operator CLI calls;
// the leader does not self-deliver — its own chain only grows once 2f+1
// commits arrive from others (see the open question preserved from
// source: with n=4 and one Byzantine follower the leader may never reach
// its own commit threshold).
func (e *Engine) Submit(data string) error {
	e.mu.Lock()
	if e.id != e.primaryID() {
		e.mu.Unlock()
		return ErrNotLeader
	}
	if e.chain == nil {
		e.mu.Unlock()
		return ErrChainNotInitialized
	}
	rec := chain.Record{
		Index:     uint64(e.chain.Len()),
		Timestamp: time.Now().UnixNano(),
		Data:      data,
	}
	view := e.view
	peers := e.registry.All()
	e.mu.Unlock()

	e.logger.Printf("proposing record %d (%q)", rec.Index, rec.Data)
	e.broadcastPrePrepare(peers, rec, view)
	return nil
}

func recordFields(r chain.Record) wire.RecordFields {
	return wire.RecordFields{
		Index: r.Index, Timestamp: r.Timestamp, Data: r.Data,
		PrevDigest: r.PrevDigest, Digest: r.Digest,
	}
}

func fromFields(f wire.RecordFields) chain.Record {
	return chain.Record{
		Index: f.Index, Timestamp: f.Timestamp, Data: f.Data,
		PrevDigest: f.PrevDigest, Digest: f.Digest,
	}
}

func (e *Engine) broadcastPrePrepare(peers map[int]registry.Endpoint, rec chain.Record, view int) {
	fields := recordFields(rec)
	for peerID, ep := range peers {
		id, err := wire.SendPrePrepare(ep.Host, ep.Port, fields, view)
		if err != nil {
			e.logger.Printf("failed to send preprepare %s to peer %d: %v", id, peerID, err)
		}
	}
}

func (e *Engine) broadcastPrepare(peers map[int]registry.Endpoint, rec chain.Record, view int) {
	fields := recordFields(rec)
	for peerID, ep := range peers {
		id, err := wire.SendPrepare(ep.Host, ep.Port, fields, view, e.id)
		if err != nil {
			e.logger.Printf("failed to send prepare %s to peer %d: %v", id, peerID, err)
		}
	}
}

func (e *Engine) broadcastCommit(peers map[int]registry.Endpoint, rec chain.Record, view int) {
	fields := recordFields(rec)
	for peerID, ep := range peers {
		id, err := wire.SendCommit(ep.Host, ep.Port, fields, view, e.id)
		if err != nil {
			e.logger.Printf("failed to send commit %s to peer %d: %v", id, peerID, err)
		}
	}
}

// guard applies the two inbound guards common to every voting message, in
// the order the spec fixes: committed keys are dropped first, then
// Byzantine replicas drop everything. Must be called with e.mu held; it
// reports whether the message should continue to be processed.
func (e *Engine) guard(key int64) bool {
	if e.committed[key] {
		return false
	}
	if e.isByzantine {
		metrics.ByzantineDropsTotal.Inc()
		return false
	}
	return true
}

func (e *Engine) proposalFor(key int64) *proposalState {
	p, ok := e.proposals[key]
	if !ok {
		p = newProposalState()
		e.proposals[key] = p
	}
	return p
}

// HandlePrePrepare implements wire.Handler. It stores the proposal, then
// broadcasts prepare to every peer.
//
// The source's handle_preprepare also flips a commitflag bool that no
// other method ever reads; it is vestigial and is not modeled here. In
// particular a later pre-prepare for the same key must not clear votes
// already collected in commit[key] — a prepare can legitimately arrive
// and cross its own quorum before the corresponding pre-prepare does (see
// the out-of-order delivery law in the spec), and clearing would break
// that guarantee.
func (e *Engine) HandlePrePrepare(f wire.RecordFields, view int) {
	rec := fromFields(f)
	key := rec.Timestamp

	e.mu.Lock()
	if !e.guard(key) {
		e.mu.Unlock()
		return
	}
	p := e.proposalFor(key)
	p.preprepare = &rec
	peers := e.registry.All()
	e.mu.Unlock()

	e.logger.Printf("preprepare: accepted record %d for view %d", rec.Index, view)
	e.broadcastPrepare(peers, rec, view)
}

// HandlePrepare implements wire.Handler. Once the prepare-quorum is
// crossed — 2f − 1 prepares from other replicas, a count that excludes
// this replica's own vote (2f with it) — it broadcasts commit. The commit-quorum
// is inclusive of self (2f + 1, counting this replica's own vote), so
// crossing the prepare-quorum also seals this replica's own commit vote
// into commit[key] before the broadcast goes out, mirroring the
// self-delivery the teacher's bft.BFTNode performs when it sends a vote.
func (e *Engine) HandlePrepare(f wire.RecordFields, view int, peerID int) {
	rec := fromFields(f)
	key := rec.Timestamp

	e.mu.Lock()
	if !e.guard(key) {
		e.mu.Unlock()
		return
	}
	p := e.proposalFor(key)
	alreadyCounted := p.prepareBy[peerID]
	p.prepareBy[peerID] = true
	total := e.registry.TotalPeers()
	threshold := (total/3)*2 - 1
	crossedQuorum := len(p.prepareBy) >= threshold
	firstBroadcast := crossedQuorum && !p.commitBroadcast
	if firstBroadcast {
		p.commitBroadcast = true
		p.commitBy[e.id] = true
	}
	peers := e.registry.All()
	e.mu.Unlock()

	if !alreadyCounted {
		metrics.PrepareReceivedTotal.Inc()
	}
	e.logger.Printf("prepare: %d/%d votes for record %d from peer %d", len(p.prepareBy), threshold, rec.Index, peerID)
	if firstBroadcast {
		e.broadcastCommit(peers, rec, view)
	}
}

// HandleCommit implements wire.Handler. Once the commit-quorum is crossed
// it appends the record to the chain, seals the key into committed, and
// marks itself as having committed (the idempotence mark inherited from
// the hardened source variant).
func (e *Engine) HandleCommit(f wire.RecordFields, view int, peerID int) {
	rec := fromFields(f)
	key := rec.Timestamp

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.guard(key) {
		return
	}
	p := e.proposalFor(key)
	alreadyCounted := p.commitBy[peerID]
	p.commitBy[peerID] = true
	if !alreadyCounted {
		metrics.CommitReceivedTotal.Inc()
	}
	total := e.registry.TotalPeers()
	threshold := (total/3)*2 + 1

	e.logger.Printf("commit: %d/%d votes for record %d from peer %d", len(p.commitBy), threshold, rec.Index, peerID)
	if len(p.commitBy) < threshold {
		return
	}
	if e.committed[key] {
		return
	}
	if e.chain == nil {
		e.logger.Printf("commit quorum reached for record %d but chain is not initialized; dropping", rec.Index)
		return
	}
	if !e.chain.Contains(key) {
		e.chain.Append(rec)
		metrics.ChainLength.Set(float64(e.chain.Len()))
		e.logger.Printf("record %d appended to chain", rec.Index)
	}
	e.committed[key] = true
	metrics.CommittedTotal.Inc()
	p.commitBy[e.id] = true
}

// GenesisForSync implements wire.Handler, answering a request_genesis
// with this replica's genesis fields if its chain is initialized.
func (e *Engine) GenesisForSync() (wire.GenesisPayload, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chain == nil {
		return wire.GenesisPayload{}, false
	}
	g := e.chain.GenesisRecord()
	return wire.GenesisPayload{Index: g.Index, Timestamp: g.Timestamp, Data: g.Data, PrevDigest: g.PrevDigest}, true
}

// HandleSendGenesis implements wire.Handler. It initializes this
// replica's chain from the four transmitted fields if not already
// initialized; the digest is recomputed locally rather than trusted off
// the wire.
func (e *Engine) HandleSendGenesis(g wire.GenesisPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chain != nil {
		return
	}
	e.chain = chain.FromGenesis(g.Index, g.Timestamp, g.Data, g.PrevDigest)
	metrics.ChainLength.Set(float64(e.chain.Len()))
	e.logger.Printf("genesis synced from peer")
}

// HandleConnectBack implements wire.Handler, completing bidirectional
// linkage: if the sender isn't already a known peer, it is added and
// RecomputePrimary refreshes the total-peers gauge.
func (e *Engine) HandleConnectBack(peerID int, peerPort int) {
	added := e.registry.Add(peerID, registry.Endpoint{Host: "127.0.0.1", Port: peerPort})
	if added {
		e.RecomputePrimary()
		e.logger.Printf("bidirectional link completed with peer %d on port %d", peerID, peerPort)
	}
}
