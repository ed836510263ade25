package syncengine

import (
	"encoding/json"
	"fmt"
)

// MessageType tags the variant carried by a BroadcastMessage.
type MessageType string

const (
	MsgSyncRequest              MessageType = "SyncRequest"
	MsgSyncResponse             MessageType = "SyncResponse"
	MsgDeltaAck                 MessageType = "DeltaAck"
	MsgFullSyncRequest          MessageType = "FullSyncRequest"
	MsgFullSyncManifestResponse MessageType = "FullSyncManifestResponse"
	MsgFullSyncData             MessageType = "FullSyncData"
	MsgFullSyncComplete         MessageType = "FullSyncComplete"
	MsgRelayNotify              MessageType = "RelayNotify"
)

// BroadcastMessage is the envelope every frame on the broadcast channel
// is wrapped in. Payload carries the variant-specific fields and is
// decoded on demand via DecodePayload.
type BroadcastMessage struct {
	Type         MessageType     `json:"type"`
	FromDeviceID DeviceID        `json:"from_device_id"`
	Payload      json.RawMessage `json:"-"`
}

// payloadFields is used to flatten the variant's fields up into the same
// JSON object as "type"/"from_device_id" (no nested "payload" key on
// the wire).
type payloadFields map[string]json.RawMessage

// MarshalJSON flattens Type, FromDeviceID, and the decoded Payload
// fields into one JSON object.
func (m BroadcastMessage) MarshalJSON() ([]byte, error) {
	var fields payloadFields
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &fields); err != nil {
			return nil, err
		}
	}
	if fields == nil {
		fields = payloadFields{}
	}
	fields["type"], _ = json.Marshal(m.Type)
	fields["from_device_id"], _ = json.Marshal(m.FromDeviceID)
	return json.Marshal(fields)
}

// UnmarshalJSON extracts type/from_device_id and keeps the rest as the
// raw payload for later decoding by DecodePayload.
func (m *BroadcastMessage) UnmarshalJSON(data []byte) error {
	var head struct {
		Type         MessageType `json:"type"`
		FromDeviceID DeviceID    `json:"from_device_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	m.Type = head.Type
	m.FromDeviceID = head.FromDeviceID
	m.Payload = append(json.RawMessage(nil), data...)
	return nil
}

// NewBroadcastMessage builds a message whose payload is the marshaled
// form of v merged with type/from_device_id.
func NewBroadcastMessage(t MessageType, from DeviceID, v any) (*BroadcastMessage, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("syncengine: marshal %s payload: %w", t, err)
	}
	return &BroadcastMessage{Type: t, FromDeviceID: from, Payload: payload}, nil
}

// DecodePayload unmarshals the message's raw JSON into v (typically a
// pointer to one of the *Payload structs below).
func (m *BroadcastMessage) DecodePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// SyncRequestPayload requests everything the sender hasn't seen yet.
type SyncRequestPayload struct {
	VersionVector *VersionVector `json:"version_vector"`
}

// SyncResponsePayload carries a batch of deltas in answer to a
// SyncRequest.
type SyncResponsePayload struct {
	Deltas  []*DeltaEntry `json:"deltas"`
	HasMore bool          `json:"has_more"`
}

// DeltaAckPayload acknowledges receipt up through LastSeq for Source.
// The receiver sends nothing back; when Source is the receiver itself,
// it records LastSeq as the sender's acknowledged position.
type DeltaAckPayload struct {
	SourceDeviceID DeviceID `json:"source_device_id"`
	LastSeq        uint64   `json:"last_seq"`
}

// FullSyncRequestPayload kicks off Layer 3 with the requester's current
// manifest.
type FullSyncRequestPayload struct {
	Manifest FullSyncManifest `json:"manifest"`
}

// FullSyncManifestResponsePayload answers a FullSyncRequest with the
// responder's own manifest, letting both sides recompute a plan.
type FullSyncManifestResponsePayload struct {
	Manifest FullSyncManifest `json:"manifest"`
}

// FullSyncDataPayload carries one exported entity during Layer 3.
type FullSyncDataPayload struct {
	EntityType       string `json:"entity_type"`
	EntityID         string `json:"entity_id"`
	EncryptedPayload []byte `json:"encrypted_payload"`
	IV               []byte `json:"iv"`
	AuthTag          []byte `json:"auth_tag,omitempty"`
}

// FullSyncCompletePayload marks the end of a Layer 3 export.
type FullSyncCompletePayload struct {
	SentCount int `json:"sent_count"`
}

// RelayNotifyPayload tells a peer that entries are waiting at the relay;
// handled entirely by the relay pickup path, not inline.
type RelayNotifyPayload struct {
	RelayIDs []string `json:"relay_ids"`
}
