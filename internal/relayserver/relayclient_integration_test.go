package relayserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"memsync/internal/syncengine"
)

// TestRelayClientAgainstServer drives the real client against the real
// server: device A stores an envelope and device B's client delivers
// it with A as the sender.
func TestRelayClientAgainstServer(t *testing.T) {
	store := syncengine.NewRelayStore(0, 0)
	s := NewServer(store, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/relay"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientA := syncengine.NewRelayClient(wsURL, "device-a", "user-1", nil)
	if err := clientA.Connect(ctx); err != nil {
		t.Fatalf("connect device-a: %v", err)
	}
	defer clientA.Close()

	clientB := syncengine.NewRelayClient(wsURL, "device-b", "user-1", nil)
	if err := clientB.Connect(ctx); err != nil {
		t.Fatalf("connect device-b: %v", err)
	}
	defer clientB.Close()

	err := clientA.Store(&syncengine.RelayEntry{
		EncryptedPayload: []byte("ciphertext"),
		Nonce:            []byte("nonce-bytes-here-012345"),
	})
	if err != nil {
		t.Fatalf("store via device-a: %v", err)
	}

	got := make(chan *syncengine.RelayEntry, 1)
	go func() {
		entry, ok := clientB.Recv()
		if ok {
			got <- entry
		}
		close(got)
	}()

	select {
	case entry := <-got:
		if entry == nil {
			t.Fatal("expected an entry on device-b, channel closed instead")
		}
		if entry.SenderDeviceID != "device-a" {
			t.Errorf("expected sender device-a, got %q", entry.SenderDeviceID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for relay delivery on device-b")
	}
}

func TestRelayClientStoreFailsWhenNotConnected(t *testing.T) {
	client := syncengine.NewRelayClient("ws://127.0.0.1:1/ws/relay", "device-a", "user-1", nil)
	err := client.Store(&syncengine.RelayEntry{EncryptedPayload: []byte("x")})
	if err == nil {
		t.Fatal("expected store on a disconnected client to fail fast")
	}
}
