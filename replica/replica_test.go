package replica

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// portBase gives each test its own port range so they can run without
// colliding, without needing a real free-port allocator.
var portBase = 19000

func nextPorts(n int) []int {
	base := portBase
	portBase += 10
	ports := make([]int, n)
	for i := range ports {
		ports[i] = base + i
	}
	return ports
}

// awaitChainLen polls r.Chain().Len() until it reaches want or the timeout
// expires, returning the last observed length. PBFT convergence here
// happens over real loopback TCP across goroutines, so tests cannot assert
// synchronously.
func awaitChainLen(r *Replica, want int, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	last := -1
	for time.Now().Before(deadline) {
		last = r.Chain().Len()
		if last >= want {
			return last
		}
		time.Sleep(10 * time.Millisecond)
	}
	return last
}

func startReplica(t *testing.T, id, port int, genesisOwner bool) *Replica {
	t.Helper()
	r := New(id, port)
	require.NoError(t, r.Start(genesisOwner))
	t.Cleanup(r.Stop)
	return r
}

func TestThreePeerHappyPath(t *testing.T) {
	ports := nextPorts(3)
	r0 := startReplica(t, 0, ports[0], true)
	r1 := startReplica(t, 1, ports[1], false)
	r2 := startReplica(t, 2, ports[2], false)

	require.NoError(t, r0.Connect(1, "127.0.0.1", ports[1]))
	require.NoError(t, r0.Connect(2, "127.0.0.1", ports[2]))
	require.NoError(t, r1.Connect(2, "127.0.0.1", ports[2]))

	require.True(t, r0.IsLeader())

	require.NoError(t, r0.Submit("hello"))

	require.Equal(t, 2, awaitChainLen(r0, 2, 2*time.Second))
	require.Equal(t, 2, awaitChainLen(r1, 2, 2*time.Second))
	require.Equal(t, 2, awaitChainLen(r2, 2, 2*time.Second))

	tail0 := r0.Chain().Tail()
	tail1 := r1.Chain().Tail()
	tail2 := r2.Chain().Tail()
	assert.Equal(t, tail0.Digest, tail1.Digest)
	assert.Equal(t, tail0.Digest, tail2.Digest)
	assert.Equal(t, "hello", tail0.Data)
	assert.True(t, r0.Chain().Validate())
	assert.True(t, r1.Chain().Validate())
	assert.True(t, r2.Chain().Validate())
}

func TestFourPeerOneByzantineStillConverges(t *testing.T) {
	ports := nextPorts(4)
	r0 := startReplica(t, 0, ports[0], true)
	r1 := startReplica(t, 1, ports[1], false)
	r2 := startReplica(t, 2, ports[2], false)
	r3 := startReplica(t, 3, ports[3], false)

	require.NoError(t, r0.Connect(1, "127.0.0.1", ports[1]))
	require.NoError(t, r0.Connect(2, "127.0.0.1", ports[2]))
	require.NoError(t, r0.Connect(3, "127.0.0.1", ports[3]))
	require.NoError(t, r1.Connect(2, "127.0.0.1", ports[2]))
	require.NoError(t, r1.Connect(3, "127.0.0.1", ports[3]))
	require.NoError(t, r2.Connect(3, "127.0.0.1", ports[3]))

	r3.ToggleByzantine()
	require.True(t, r3.IsByzantine())

	require.NoError(t, r0.Submit("tx-A"))

	require.Equal(t, 2, awaitChainLen(r0, 2, 2*time.Second))
	require.Equal(t, 2, awaitChainLen(r1, 2, 2*time.Second))
	require.Equal(t, 2, awaitChainLen(r2, 2, 2*time.Second))

	// Give the Byzantine peer the same window; it must still be stuck at
	// genesis only, since it drops every inbound vote.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, r3.Chain().Len())
}

func TestLateJoinerSyncsGenesisFromExistingPeer(t *testing.T) {
	ports := nextPorts(2)
	r0 := startReplica(t, 0, ports[0], true)
	r1 := startReplica(t, 1, ports[1], false)

	require.Nil(t, r1.Chain(), "joiner has no chain before connecting")

	require.NoError(t, r1.Connect(0, "127.0.0.1", ports[0]))

	require.NotNil(t, r1.Chain())
	assert.Equal(t, r0.Chain().GenesisRecord().Digest, r1.Chain().GenesisRecord().Digest)
	assert.Equal(t, 1, r1.Chain().Len())
}

func TestNonLeaderSubmitIsRejectedAndChainDoesNotGrow(t *testing.T) {
	ports := nextPorts(2)
	r0 := startReplica(t, 0, ports[0], true)
	r1 := startReplica(t, 1, ports[1], false)

	require.NoError(t, r0.Connect(1, "127.0.0.1", ports[1]))
	require.False(t, r1.IsLeader())

	err := r1.Submit("should not be accepted")
	assert.Error(t, err)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, r0.Chain().Len())
	assert.Equal(t, 1, r1.Chain().Len())
}

func TestBidirectionalLinkageAndPeerListing(t *testing.T) {
	ports := nextPorts(3)
	r0 := startReplica(t, 0, ports[0], true)
	r1 := startReplica(t, 1, ports[1], false)
	r2 := startReplica(t, 2, ports[2], false)

	require.NoError(t, r0.Connect(1, "127.0.0.1", ports[1]))
	require.NoError(t, r0.Connect(2, "127.0.0.1", ports[2]))
	require.NoError(t, r1.Connect(2, "127.0.0.1", ports[2]))

	// connect_back makes every link bidirectional from a single Connect
	// call, so each replica ends up knowing both of its peers.
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, r0.Peers(), 2)
	assert.Len(t, r1.Peers(), 2)
	assert.Len(t, r2.Peers(), 2)

	assert.Equal(t, fmt.Sprintf("%v", map[int]int{1: ports[1], 2: ports[2]}), fmt.Sprintf("%v", r0.Peers()))
}

func TestSecondSubmitExtendsChainAgainWithDistinctDigest(t *testing.T) {
	ports := nextPorts(3)
	r0 := startReplica(t, 0, ports[0], true)
	r1 := startReplica(t, 1, ports[1], false)
	r2 := startReplica(t, 2, ports[2], false)

	require.NoError(t, r0.Connect(1, "127.0.0.1", ports[1]))
	require.NoError(t, r0.Connect(2, "127.0.0.1", ports[2]))
	require.NoError(t, r1.Connect(2, "127.0.0.1", ports[2]))

	require.NoError(t, r0.Submit("first"))
	require.Equal(t, 2, awaitChainLen(r2, 2, 2*time.Second))

	require.NoError(t, r0.Submit("second"))
	require.Equal(t, 3, awaitChainLen(r2, 3, 2*time.Second))

	first := r2.Chain().Records()[1]
	second := r2.Chain().Records()[2]
	assert.Equal(t, first.Digest, second.PrevDigest)
	assert.NotEqual(t, first.Digest, second.Digest)
	assert.True(t, r2.Chain().Validate())
}
