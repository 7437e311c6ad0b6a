package wire

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// dialTimeout bounds how long an outbound connect attempt waits before
// giving up, so one unreachable peer can't stall a whole broadcast.
const dialTimeout = 2 * time.Second

func decodePayload(env Envelope, out interface{}) error {
	return json.Unmarshal(env.Payload, out)
}

func dial(host string, port int) (net.Conn, error) {
	return net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), dialTimeout)
}

// Probe opens and immediately closes a connection to host:port, mirroring
// the original source's bare connect-then-close call that precedes
// recording a new peer in connect_peer.
func Probe(host string, port int) error {
	conn, err := dial(host, port)
	if err != nil {
		return fmt.Errorf("dial %s:%d: %w", host, port, err)
	}
	return conn.Close()
}

// SendPrePrepare opens a fresh connection to host:port and sends a
// pre-prepare message, matching the "one short-lived connection per
// outbound message" transport contract. It returns the envelope's
// correlation id so the caller can tie a broadcast failure back to the
// specific message that produced it.
func SendPrePrepare(host string, port int, rec RecordFields, view int) (string, error) {
	return sendOneShot(host, port, TagPrePrepare, PrePreparePayload{Record: rec, View: view})
}

// SendPrepare sends a prepare vote.
func SendPrepare(host string, port int, rec RecordFields, view, peerID int) (string, error) {
	return sendOneShot(host, port, TagPrepare, VotePayload{Record: rec, View: view, PeerID: peerID})
}

// SendCommit sends a commit vote.
func SendCommit(host string, port int, rec RecordFields, view, peerID int) (string, error) {
	return sendOneShot(host, port, TagCommit, VotePayload{Record: rec, View: view, PeerID: peerID})
}

// SendGenesis proactively pushes this replica's genesis fields to a new
// peer, used when the connecting replica already has a chain.
func SendGenesis(host string, port int, g GenesisPayload) (string, error) {
	return sendOneShot(host, port, TagSendGenesis, g)
}

// SendConnectBack asks the peer at host:port to add us as a peer too,
// completing bidirectional linkage.
func SendConnectBack(host string, port int, selfID, selfPort int) (string, error) {
	return sendOneShot(host, port, TagConnectBack, ConnectBackPayload{PeerID: selfID, PeerPort: selfPort})
}

// sendOneShot stamps the envelope before dialing, so its correlation id is
// available to the caller even when the dial itself fails.
func sendOneShot(host string, port int, tag Tag, payload interface{}) (string, error) {
	env, err := newEnvelope(tag, payload)
	if err != nil {
		return "", err
	}

	conn, err := dial(host, port)
	if err != nil {
		return env.ID, fmt.Errorf("dial %s:%d: %w", host, port, err)
	}
	defer conn.Close()

	if err := writeFrame(conn, env); err != nil {
		return env.ID, err
	}
	return env.ID, nil
}

// RequestGenesis opens a connection, sends request_genesis, and blocks for
// the synchronous send_genesis reply on the same connection — the one
// request/response exchange in an otherwise fire-and-forget protocol.
func RequestGenesis(host string, port int) (GenesisPayload, error) {
	conn, err := dial(host, port)
	if err != nil {
		return GenesisPayload{}, fmt.Errorf("dial %s:%d: %w", host, port, err)
	}
	defer conn.Close()

	env, err := newEnvelope(TagRequestGenesis, struct{}{})
	if err != nil {
		return GenesisPayload{}, err
	}
	if err := writeFrame(conn, env); err != nil {
		return GenesisPayload{}, fmt.Errorf("send request_genesis: %w", err)
	}

	reply, err := readFrame(conn)
	if err != nil {
		return GenesisPayload{}, fmt.Errorf("read genesis reply: %w", err)
	}
	var g GenesisPayload
	if err := decodePayload(reply, &g); err != nil {
		return GenesisPayload{}, fmt.Errorf("decode genesis reply: %w", err)
	}
	return g, nil
}
