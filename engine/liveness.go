package engine

import (
	"sync"
	"time"

	"pbftledger/metrics"
	"pbftledger/wire"
)

// livenessInterval is how often the liveness prober re-checks every known
// peer, mirroring the heartbeat client's periodic ticker.
const livenessInterval = 10 * time.Second

// LivenessProbe periodically dials every registered peer and tracks which
// ones answered the most recent round. It replaces a dedicated heartbeat
// protocol with a reuse of the same short-lived probe connect used during
// Connect, run on a ticker instead of a reconnect loop.
type LivenessProbe struct {
	engine *Engine

	mu          sync.Mutex
	unreachable map[int]bool

	stop chan struct{}
	done chan struct{}
}

// NewLivenessProbe builds a prober bound to e. Call Start to begin polling.
func NewLivenessProbe(e *Engine) *LivenessProbe {
	return &LivenessProbe{
		engine:      e,
		unreachable: make(map[int]bool),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the polling loop in its own goroutine.
func (l *LivenessProbe) Start() {
	go l.loop()
}

// Stop halts the polling loop and waits for it to exit.
func (l *LivenessProbe) Stop() {
	close(l.stop)
	<-l.done
}

func (l *LivenessProbe) loop() {
	defer close(l.done)
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.pollOnce()
		case <-l.stop:
			return
		}
	}
}

func (l *LivenessProbe) pollOnce() {
	peers := l.engine.Registry().All()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, ep := range peers {
		reachable := wire.Probe(ep.Host, ep.Port) == nil
		wasUnreachable := l.unreachable[id]
		if reachable {
			delete(l.unreachable, id)
			continue
		}
		l.unreachable[id] = true
		if !wasUnreachable {
			l.engine.logger.Printf("liveness: peer %d is unreachable", id)
		}
	}
	metrics.UnreachablePeers.Set(float64(len(l.unreachable)))
}

// Unreachable returns the ids of peers that failed the most recent probe.
func (l *LivenessProbe) Unreachable() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int, 0, len(l.unreachable))
	for id := range l.unreachable {
		ids = append(ids, id)
	}
	return ids
}
