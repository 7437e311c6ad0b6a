// Package chain implements the hash-linked, append-only record sequence
// every replica holds. It never talks to the network or the engine; it only
// knows how to link and validate records.
package chain

import (
	"fmt"
	"time"

	"pbftledger/digest"
)

// GenesisData is the fixed payload of record 0, matching the original
// source's BlockChain.createGenesis.
const GenesisData = "Genesis"

// GenesisPrevDigest is the sentinel prev-digest carried by the genesis record.
const GenesisPrevDigest = "0"

// Record is a single entry in the chain.
type Record struct {
	Index      uint64 `json:"index"`
	Timestamp  int64  `json:"timestamp"`
	Data       string `json:"data"`
	PrevDigest string `json:"prev_digest"`
	Digest     string `json:"digest"`
}

// recompute returns the digest this record should carry given its own
// fields and the supplied prev-digest.
func (r Record) recompute(prevDigest string) string {
	return digest.Of(r.Index, r.Data, r.Timestamp, prevDigest)
}

func (r Record) String() string {
	return fmt.Sprintf("Record(index: %d, timestamp: %d, data: %s, prev_digest: %s, digest: %s)",
		r.Index, r.Timestamp, r.Data, r.PrevDigest, r.Digest)
}

// Chain is an ordered, append-only sequence of records.
type Chain struct {
	records []Record
}

// Genesis builds a new chain whose sole record is the genesis record, with
// timestamp set to now.
func Genesis() *Chain {
	g := Record{
		Index:      0,
		Timestamp:  time.Now().UnixNano(),
		Data:       GenesisData,
		PrevDigest: GenesisPrevDigest,
	}
	g.Digest = g.recompute(GenesisPrevDigest)
	return &Chain{records: []Record{g}}
}

// FromGenesis builds a chain from genesis fields received over the wire
// (used by a follower's bootstrap sync). The digest is recomputed locally
// from the received fields; the genesis payload carries no digest, and
// Validate does not check record 0, so altered genesis fields are not
// detected here.
func FromGenesis(index uint64, timestamp int64, data, prevDigest string) *Chain {
	g := Record{
		Index:      index,
		Timestamp:  timestamp,
		Data:       data,
		PrevDigest: prevDigest,
	}
	g.Digest = g.recompute(prevDigest)
	return &Chain{records: []Record{g}}
}

// Len returns the number of records in the chain.
func (c *Chain) Len() int {
	return len(c.records)
}

// Tail returns the most recently appended record.
func (c *Chain) Tail() Record {
	return c.records[len(c.records)-1]
}

// GenesisRecord returns the first record in the chain.
func (c *Chain) GenesisRecord() Record {
	return c.records[0]
}

// Records returns a copy of the full record sequence.
func (c *Chain) Records() []Record {
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Contains reports whether any record in the chain carries the given
// timestamp (the proposal key), mirroring the source's linear scan guard
// in handle_commit before appending.
func (c *Chain) Contains(timestamp int64) bool {
	for _, r := range c.records {
		if r.Timestamp == timestamp {
			return true
		}
	}
	return false
}

// Append relinks rec against the current tail, recomputes its digest, and
// pushes it onto the chain. Callers are responsible for the no-op guard
// (checking Contains/committed) before calling Append; the chain itself
// does not deduplicate.
func (c *Chain) Append(rec Record) {
	rec.PrevDigest = c.Tail().Digest
	rec.Digest = rec.recompute(rec.PrevDigest)
	c.records = append(c.records, rec)
}

// Validate returns true iff every record after genesis has a digest that
// recomputes correctly and a prev-link matching its predecessor's digest.
// The genesis record itself is not checked.
func (c *Chain) Validate() bool {
	for i := 1; i < len(c.records); i++ {
		cur := c.records[i]
		prev := c.records[i-1]
		if cur.recompute(cur.PrevDigest) != cur.Digest {
			return false
		}
		if cur.PrevDigest != prev.Digest {
			return false
		}
	}
	return true
}

func (c *Chain) String() string {
	out := ""
	for i, r := range c.records {
		if i > 0 {
			out += "\n"
		}
		out += r.String()
	}
	return out
}
