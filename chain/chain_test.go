package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisIsValidAlone(t *testing.T) {
	c := Genesis()
	require.Equal(t, 1, c.Len())
	assert.Equal(t, GenesisData, c.GenesisRecord().Data)
	assert.Equal(t, GenesisPrevDigest, c.GenesisRecord().PrevDigest)
	assert.True(t, c.Validate())
}

func TestAppendLinksAndValidates(t *testing.T) {
	c := Genesis()
	rec := Record{Index: 1, Timestamp: 111, Data: "hello"}
	c.Append(rec)

	require.Equal(t, 2, c.Len())
	tail := c.Tail()
	assert.Equal(t, c.Records()[0].Digest, tail.PrevDigest)
	assert.True(t, c.Validate())
}

func TestAppendOverwritesSuppliedLinkFields(t *testing.T) {
	c := Genesis()
	rec := Record{Index: 1, Timestamp: 111, Data: "hello", PrevDigest: "garbage", Digest: "garbage"}
	c.Append(rec)

	tail := c.Tail()
	assert.NotEqual(t, "garbage", tail.PrevDigest)
	assert.NotEqual(t, "garbage", tail.Digest)
	assert.True(t, c.Validate())
}

func TestValidateDetectsTamperedDigest(t *testing.T) {
	c := Genesis()
	c.Append(Record{Index: 1, Timestamp: 111, Data: "hello"})

	c.records[1].Digest = "00"
	assert.False(t, c.Validate())
}

func TestValidateDetectsBrokenLink(t *testing.T) {
	c := Genesis()
	c.Append(Record{Index: 1, Timestamp: 111, Data: "hello"})
	c.Append(Record{Index: 2, Timestamp: 222, Data: "world"})

	c.records[1].PrevDigest = "00"
	assert.False(t, c.Validate())
}

func TestContains(t *testing.T) {
	c := Genesis()
	c.Append(Record{Index: 1, Timestamp: 111, Data: "hello"})

	assert.True(t, c.Contains(111))
	assert.False(t, c.Contains(999))
}

func TestFromGenesisReproducesDigestLocally(t *testing.T) {
	src := Genesis()
	g := src.GenesisRecord()

	dst := FromGenesis(g.Index, g.Timestamp, g.Data, g.PrevDigest)
	assert.Equal(t, g.Digest, dst.GenesisRecord().Digest)
	assert.True(t, dst.Validate())
}
