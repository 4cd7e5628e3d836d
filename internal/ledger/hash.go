package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gowebpki/jcs"

	"auditflow/backend/internal/ledger/domain"
)

// hashedContents is everything a block hash commits to besides the previous hash.
type hashedContents struct {
	AuditID    string          `json:"audit_id"`
	Number     int64           `json:"block_number"`
	Actor      string          `json:"actor"`
	ActorType  string          `json:"actor_type"`
	Action     string          `json:"action"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Timestamp  string          `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

// CanonicalPayload serializes payload as RFC 8785 canonical JSON. A nil payload is "{}".
func CanonicalPayload(payload map[string]any) (json.RawMessage, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// ComputeHash returns hex(sha256(prevHash || canonical(contents of b))).
func ComputeHash(prevHash string, b *domain.Block) (string, error) {
	payload := b.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	raw, err := json.Marshal(hashedContents{
		AuditID:    b.AuditID,
		Number:     b.Number,
		Actor:      b.Actor,
		ActorType:  string(b.ActorType),
		Action:     b.Action,
		EntityKind: string(b.EntityKind),
		EntityID:   b.EntityID,
		Timestamp:  b.CreatedAt.UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(prevHash), canonical...))
	return hex.EncodeToString(sum[:]), nil
}
