package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the envelope format version written by this package.
// Readers reject envelopes with a newer version than they understand.
const Version = 1

// Checkpoint is the versioned envelope serialized into a Store. It
// captures everything needed to resume a suspended run: the state at the
// moment of suspension, the node that raised the interrupt, the node
// execution continues from, and the key the resume value is written
// under.
type Checkpoint struct {
	Version   int             `json:"version"`
	ThreadID  string          `json:"thread_id"`
	NodeID    string          `json:"node_id"`
	NextNode  string          `json:"next_node,omitempty"`
	State     json.RawMessage `json:"state"`
	ResumeKey string          `json:"resume_key,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New builds a checkpoint for a thread with the state already serialized.
func New(threadID, nodeID string, state json.RawMessage) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		ThreadID:  threadID,
		NodeID:    nodeID,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
}

// Marshal serializes the checkpoint envelope.
func (c *Checkpoint) Marshal() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return data, nil
}

// Unmarshal parses a checkpoint envelope and validates its version.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	if c.Version > Version {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", c.Version, Version)
	}
	return &c, nil
}
