package syncengine

import (
	"encoding/json"
	"testing"
)

// TestBroadcastMessage_FlattensPayloadOnTheWire pins the frame shape:
// the variant's fields sit alongside type/from_device_id in one flat
// JSON object, with no nested payload key.
func TestBroadcastMessage_FlattensPayloadOnTheWire(t *testing.T) {
	msg, err := NewBroadcastMessage(MsgSyncRequest, "A", SyncRequestPayload{
		VersionVector: VersionVectorFromMap(map[DeviceID]uint64{"A": 3}),
	})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal flat: %v", err)
	}
	for _, field := range []string{"type", "from_device_id", "version_vector"} {
		if _, ok := flat[field]; !ok {
			t.Errorf("expected top-level field %q on the wire, got %s", field, data)
		}
	}
	if _, ok := flat["payload"]; ok {
		t.Errorf("expected no nested payload key, got %s", data)
	}
}

func TestBroadcastMessage_WireRoundTrip(t *testing.T) {
	orig, err := NewBroadcastMessage(MsgSyncResponse, "B", SyncResponsePayload{
		Deltas: []*DeltaEntry{
			NewStoreEntry("B", VersionVectorFromMap(map[DeviceID]uint64{"B": 1}), "k", "v", "core", nowStub(100)),
		},
		HasMore: true,
	})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded BroadcastMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != MsgSyncResponse || decoded.FromDeviceID != "B" {
		t.Fatalf("unexpected header: %+v", decoded)
	}

	var p SyncResponsePayload
	if err := decoded.DecodePayload(&p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !p.HasMore || len(p.Deltas) != 1 {
		t.Fatalf("unexpected payload: %+v", p)
	}
	d := p.Deltas[0]
	if d.Operation.Kind != OpStore || d.Operation.Key != "k" || d.Version.Get("B") != 1 {
		t.Errorf("delta did not survive the round trip: %+v", d)
	}
}

// TestDeltaOperation_TaggedSumWireShape pins the {"Store": {...}} /
// {"Forget": {...}} operation encoding.
func TestDeltaOperation_TaggedSumWireShape(t *testing.T) {
	store := DeltaOperation{Kind: OpStore, Key: "k", Content: "v", Category: "core"}
	data, err := json.Marshal(store)
	if err != nil {
		t.Fatalf("marshal store: %v", err)
	}
	var shape map[string]map[string]string
	if err := json.Unmarshal(data, &shape); err != nil {
		t.Fatalf("unmarshal shape: %v", err)
	}
	if shape["Store"]["key"] != "k" || shape["Store"]["content"] != "v" {
		t.Errorf("unexpected Store wire shape: %s", data)
	}

	var back DeltaOperation
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal back: %v", err)
	}
	if back != store {
		t.Errorf("expected %+v back, got %+v", store, back)
	}

	forget := DeltaOperation{Kind: OpForget, Key: "k"}
	data, err = json.Marshal(forget)
	if err != nil {
		t.Fatalf("marshal forget: %v", err)
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal forget: %v", err)
	}
	if back != forget {
		t.Errorf("expected %+v back, got %+v", forget, back)
	}

	if _, err := json.Marshal(DeltaOperation{Kind: "bogus"}); err == nil {
		t.Error("expected marshal of an unknown kind to fail")
	}
}
