// Package config holds the bootstrap parameters a replica needs at
// startup, assembled from command-line flags before the replica and its
// listener are constructed.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// PeerAddr is one entry of the --peer repeatable flag: id@host:port.
type PeerAddr struct {
	ID   int
	Host string
	Port int
}

// Replica is the parsed set of flags serve needs to bring a node up;
// --metrics-addr is read separately and is not part of it.
type Replica struct {
	ID      int
	Port    int
	Genesis bool
	Peers   []PeerAddr
}

// String renders the config for the "config:" line serve prints at
// startup.
func (r Replica) String() string {
	return fmt.Sprintf("id=%d port=%d genesis=%t peers=%d", r.ID, r.Port, r.Genesis, len(r.Peers))
}

// ParsePeerAddr parses one --peer flag value of the form id@host:port.
func ParsePeerAddr(s string) (PeerAddr, error) {
	idPart, hostPort, ok := strings.Cut(s, "@")
	if !ok {
		return PeerAddr{}, fmt.Errorf("peer %q: expected id@host:port", s)
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return PeerAddr{}, fmt.Errorf("peer %q: invalid id: %w", s, err)
	}
	host, portStr, ok := strings.Cut(hostPort, ":")
	if !ok {
		return PeerAddr{}, fmt.Errorf("peer %q: expected id@host:port", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return PeerAddr{}, fmt.Errorf("peer %q: invalid port: %w", s, err)
	}
	return PeerAddr{ID: id, Host: host, Port: port}, nil
}
