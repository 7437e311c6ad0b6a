package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// maxFrameSize bounds a single incoming frame so a corrupt or hostile
// length prefix can't make the listener allocate unbounded memory.
const maxFrameSize = 16 << 20 // 16 MiB

// newEnvelope marshals payload and wraps it with a fresh correlation id.
func newEnvelope(tag Tag, payload interface{}) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", tag, err)
	}
	return Envelope{ID: uuid.NewString(), Tag: tag, Payload: body}, nil
}

// writeFrame writes a 4-byte big-endian length prefix followed by the
// JSON-encoded envelope, matching the teacher's filetransfer length-prefix
// idiom (encoding/binary) layered under the gossip package's JSON envelope
// idiom.
func writeFrame(w io.Writer, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(body))); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed envelope from r.
func readFrame(r io.Reader) (Envelope, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Envelope{}, err
	}
	if length > maxFrameSize {
		return Envelope{}, fmt.Errorf("frame of %d bytes exceeds max %d", length, maxFrameSize)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}
