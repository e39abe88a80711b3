package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawpanic/quantfund/internal/domain"
)

// EnvelopeVersion is the current wire format version
const EnvelopeVersion = 1

// Envelope wraps a snapshot for out-of-process delivery
type Envelope struct {
	Version   int             `json:"version"`  // Message format version (start at 1)
	Seq       uint64          `json:"seq"`      // Snapshot sequence number
	Timestamp time.Time       `json:"ts"`       // Snapshot as-of time
	Source    string          `json:"source"`   // Publishing instance
	Payload   json.RawMessage `json:"payload"`  // Encoded domain.Snapshot
	Checksum  string          `json:"checksum"` // sha256(payload||ts||seq||source)
}

// NewEnvelope encodes snap and seals it with a checksum
func NewEnvelope(source string, snap *domain.Snapshot) (*Envelope, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	e := &Envelope{
		Version:   EnvelopeVersion,
		Seq:       snap.Seq,
		Timestamp: snap.AsOf,
		Source:    source,
		Payload:   payload,
	}
	e.Checksum = e.ComputeChecksum()
	return e, nil
}

// ComputeChecksum generates SHA256 checksum for message integrity
func (e *Envelope) ComputeChecksum() string {
	hashInput := fmt.Sprintf("%s||%d||%d||%s",
		string(e.Payload),
		e.Timestamp.UnixNano(),
		e.Seq,
		e.Source)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// Validate checks required fields and verifies the checksum
func Validate(e *Envelope) error {
	if e.Version <= 0 || e.Version > EnvelopeVersion {
		return fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	if e.Source == "" {
		return fmt.Errorf("envelope source is empty")
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("envelope payload is empty")
	}
	if expected := e.ComputeChecksum(); e.Checksum != expected {
		return fmt.Errorf("envelope checksum mismatch: expected %s, got %s", expected, e.Checksum)
	}
	return nil
}

// Snapshot decodes the payload
func (e *Envelope) Snapshot() (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(e.Payload, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// FromJSON deserializes an envelope and validates it
func FromJSON(data []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if err := Validate(&envelope); err != nil {
		return nil, fmt.Errorf("envelope validation failed: %w", err)
	}
	return &envelope, nil
}
