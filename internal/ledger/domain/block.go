package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"auditflow/backend/internal/actor"
)

// GenesisHash is the previous hash of the first block of every audit chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// EntityKind names the kind of entity a block mutates.
type EntityKind string

const (
	EntityRequirement EntityKind = "requirement"
	EntitySubmission  EntityKind = "submission"
	EntityFinding     EntityKind = "finding"
)

// Timeline categories. Escalation blocks are grouped separately from the entity they raise.
const (
	CategoryRequirement = "requirement"
	CategorySubmission  = "submission"
	CategoryFinding     = "finding"
	CategoryEscalation  = "escalation"
)

// Block is one immutable, hash-linked ledger record.
type Block struct {
	AuditID    string
	Number     int64
	Hash       string
	PrevHash   string
	Actor      string
	ActorType  actor.Type
	Action     string
	EntityKind EntityKind
	EntityID   string
	Payload    json.RawMessage // canonical JSON
	CreatedAt  time.Time
}

// Category returns the timeline category of the block.
func (b *Block) Category() string {
	if strings.HasSuffix(b.Action, ".escalated") || strings.HasPrefix(b.Action, "escalation.") {
		return CategoryEscalation
	}
	return string(b.EntityKind)
}

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	c := *b
	c.Payload = append(json.RawMessage(nil), b.Payload...)
	return &c
}

// Entry is the caller-supplied part of a block; the ledger fills in number, hashes and time.
type Entry struct {
	AuditID    string
	Actor      actor.Actor
	Action     string
	EntityKind EntityKind
	EntityID   string
	Payload    map[string]any
}

// Query narrows a block listing.
type Query struct {
	// AfterBlock skips blocks numbered at or below it.
	AfterBlock int64
	// Limit caps the number of blocks returned; 0 means no limit.
	Limit int
}

// Verification is the result of recomputing an audit chain.
type Verification struct {
	AuditID string `json:"audit_id"`
	Valid   bool   `json:"valid"`
	Length  int64  `json:"length"`
	// DivergentBlock is the number of the first block whose link or hash does not verify.
	DivergentBlock *int64 `json:"divergent_block,omitempty"`
	Reason         string `json:"reason,omitempty"`
	HeadHash       string `json:"head_hash"`
}

// Decimal renders a score with two fixed decimals so payloads never carry binary floats.
func Decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
