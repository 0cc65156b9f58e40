// Package audit implements the tamper-evident, hash-chained append-only
// log: one ndjson segment file per rotation window under log_dir/, older
// segments moved into log_dir/archive/. Every entry's hash commits to the
// previous entry's hash, so mutating any byte of any entry is detectable by
// Verify.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tech4242/aquaman/internal/cryptoutil"
)

// EntryType classifies an audit entry. Closed set.
type EntryType string

const (
	EntryToolCall          EntryType = "tool_call"
	EntryToolResult        EntryType = "tool_result"
	EntryPolicyViolation   EntryType = "policy_violation"
	EntryApprovalRequest   EntryType = "approval_request"
	EntryCredentialAccess  EntryType = "credential_access"
)

// ZeroHash is the previous_hash of the very first entry in the log.
var ZeroHash = strings.Repeat("0", 64)

// Entry is one line of the audit log. Hash commits to every other field via
// canonical JSON, so field order in the Go struct has no bearing on the
// wire format — canonicalJSON re-serializes with sorted keys regardless of
// struct field order.
type Entry struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	Type         EntryType       `json:"type"`
	SessionID    string          `json:"session_id,omitempty"`
	AgentID      string          `json:"agent_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	PreviousHash string          `json:"previous_hash"`
	Hash         string          `json:"hash"`
}

// NewEntry stamps id/timestamp/previous_hash and computes hash for a
// caller-supplied partial entry. The timestamp is RFC 3339 with millisecond
// precision; Go's time.Time marshals to RFC 3339Nano by default, so the
// canonicalization below truncates to milliseconds explicitly.
func NewEntry(entryType EntryType, sessionID, agentID string, data any, previousHash string) (Entry, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return Entry{}, fmt.Errorf("marshaling entry data: %w", err)
	}

	e := Entry{
		ID:           cryptoutil.GenerateID(),
		Timestamp:    time.Now().UTC().Truncate(time.Millisecond),
		Type:         entryType,
		SessionID:    sessionID,
		AgentID:      agentID,
		Data:         dataJSON,
		PreviousHash: previousHash,
	}

	canonical, err := canonicalJSONWithoutHash(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = cryptoutil.ComputeChainedHash(canonical, previousHash)
	return e, nil
}

// Verify recomputes e's hash from its other fields and reports whether it
// matches e.Hash, and whether e.PreviousHash equals expectedPreviousHash.
func (e Entry) Verify(expectedPreviousHash string) (bool, error) {
	if e.PreviousHash != expectedPreviousHash {
		return false, nil
	}
	canonical, err := canonicalJSONWithoutHash(e)
	if err != nil {
		return false, err
	}
	return cryptoutil.ComputeChainedHash(canonical, e.PreviousHash) == e.Hash, nil
}

// canonicalJSONWithoutHash renders e (excluding its own Hash field) as JSON
// with lexicographically sorted keys and no insignificant whitespace, so
// hashing is reproducible independent of Go map/field ordering.
func canonicalJSONWithoutHash(e Entry) ([]byte, error) {
	fields := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"type":          e.Type,
		"previous_hash": e.PreviousHash,
	}
	if e.SessionID != "" {
		fields["session_id"] = e.SessionID
	}
	if e.AgentID != "" {
		fields["agent_id"] = e.AgentID
	}
	if len(e.Data) > 0 {
		var data any
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return nil, fmt.Errorf("decoding entry data for canonicalization: %w", err)
		}
		fields["data"] = data
	}
	return canonicalJSON(fields)
}

// canonicalJSON marshals v with object keys sorted lexicographically and no
// insignificant whitespace. encoding/json already sorts map[string]any keys
// and omits insignificant whitespace in Marshal output, so this is a thin,
// explicitly-named wrapper documenting that guarantee as load-bearing.
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// marshalLine renders e as one canonical-JSON ndjson line, including its
// own Hash field (unlike canonicalJSONWithoutHash, which computes it).
func (e Entry) marshalLine() ([]byte, error) {
	fields := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"type":          e.Type,
		"previous_hash": e.PreviousHash,
		"hash":          e.Hash,
	}
	if e.SessionID != "" {
		fields["session_id"] = e.SessionID
	}
	if e.AgentID != "" {
		fields["agent_id"] = e.AgentID
	}
	if len(e.Data) > 0 {
		var data any
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return nil, fmt.Errorf("decoding entry data: %w", err)
		}
		fields["data"] = data
	}
	line, err := canonicalJSON(fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling entry line: %w", err)
	}
	return append(line, '\n'), nil
}

// unmarshalLine parses one ndjson line into an Entry.
func unmarshalLine(line []byte) (Entry, error) {
	var raw struct {
		ID           string          `json:"id"`
		Timestamp    time.Time       `json:"timestamp"`
		Type         EntryType       `json:"type"`
		SessionID    string          `json:"session_id"`
		AgentID      string          `json:"agent_id"`
		Data         json.RawMessage `json:"data"`
		PreviousHash string          `json:"previous_hash"`
		Hash         string          `json:"hash"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, fmt.Errorf("parsing audit entry: %w", err)
	}
	return Entry{
		ID:           raw.ID,
		Timestamp:    raw.Timestamp,
		Type:         raw.Type,
		SessionID:    raw.SessionID,
		AgentID:      raw.AgentID,
		Data:         raw.Data,
		PreviousHash: raw.PreviousHash,
		Hash:         raw.Hash,
	}, nil
}
