package handoff

import (
	"encoding/json"
	"fmt"

	"dynastore/internal/clock"
	"dynastore/internal/storage"
)

// Hint is one deferred write: a value that could not be delivered to its
// destination replica at write time and is parked locally for later replay.
type Hint struct {
	// ID uniquely names this hint for logging and diagnostics.
	ID string
	// Store is the name of the store the write belongs to.
	Store string
	// Node is the destination replica.
	Node clock.NodeID
	// Key is the write's key within the store.
	Key []byte
	// Version is the value and the clock it was stamped with.
	Version storage.Versioned
	// CreatedAt is the wall-clock millis the hint was recorded.
	CreatedAt int64
}

// slotKey addresses the hint's slot in the handoff engine. One slot per
// (destination node, store, key): a newer write to the same slot supersedes
// the parked one via the engine's version comparison.
func (h Hint) slotKey() []byte {
	return []byte(fmt.Sprintf("%d/%s/%x", h.Node, h.Store, h.Key))
}

// hintRecord is the stored form. The clock travels inside Version's binary
// encoding next to the value, so replay delivers exactly what was stamped.
type hintRecord struct {
	ID        string       `json:"id"`
	Store     string       `json:"store"`
	Node      clock.NodeID `json:"node"`
	Key       []byte       `json:"key"`
	Value     []byte       `json:"value"`
	Clock     []byte       `json:"clock"`
	CreatedAt int64        `json:"created_at_ms"`
}

func encodeHint(h Hint) ([]byte, error) {
	cb, err := h.Version.VClock().MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode hint clock: %w", err)
	}
	return json.Marshal(hintRecord{
		ID:        h.ID,
		Store:     h.Store,
		Node:      h.Node,
		Key:       h.Key,
		Value:     h.Version.Value,
		Clock:     cb,
		CreatedAt: h.CreatedAt,
	})
}

func decodeHint(data []byte) (Hint, error) {
	var rec hintRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Hint{}, fmt.Errorf("decode hint: %w", err)
	}
	vc := clock.New()
	if err := vc.UnmarshalBinary(rec.Clock); err != nil {
		return Hint{}, fmt.Errorf("decode hint clock: %w", err)
	}
	return Hint{
		ID:        rec.ID,
		Store:     rec.Store,
		Node:      rec.Node,
		Key:       rec.Key,
		Version:   storage.Versioned{Value: rec.Value, Clock: vc},
		CreatedAt: rec.CreatedAt,
	}, nil
}
