package syncengine

import (
	"math"
	"sync"
	"time"

	"memsync/internal/pkg/logging"
)

// DefaultSyncBatchSize bounds how many deltas a single SyncResponse
// carries.
const DefaultSyncBatchSize = 50

// BroadcastChannel is the one capability the Coordinator needs from its
// transport: the ability to send a message. Receiving happens by the
// host calling Coordinator.HandleMessage directly with whatever it read
// off the channel — the coordinator never retains a callback into the
// transport, keeping ownership tree-shaped per the package's design
// notes.
type BroadcastChannel interface {
	Send(msg *BroadcastMessage) error
}

// Coordinator dispatches inbound BroadcastMessages to handlers and
// produces the outbound messages those handlers trigger. It owns the
// Synced Memory and an Order Buffer initialised from the memory's
// current vector.
type Coordinator struct {
	device    DeviceID
	memory    *SyncedMemory
	order     *OrderBuffer
	manifest  *ManifestEngine
	batchSize int
	logger    *logging.Logger

	peersMu sync.Mutex
	peers   map[DeviceID]PeerInfo
}

// PeerInfo is the liveness bookkeeping kept per peer device: when it
// was last heard from on the channel, and the highest sequence of ours
// it has acknowledged.
type PeerInfo struct {
	LastSeen   time.Time
	LastAckSeq uint64
}

// NewCoordinator wires a device identity, synced memory, and batch size
// into a Coordinator. The order buffer is seeded from the memory's
// current journal vector so replays after a restart resume exactly
// where they left off.
func NewCoordinator(device DeviceID, mem *SyncedMemory, journalVersion *VersionVector, batchSize int, logger *logging.Logger) *Coordinator {
	if batchSize <= 0 {
		batchSize = DefaultSyncBatchSize
	}
	if logger == nil {
		logger = logging.Nop()
	}
	order := NewOrderBuffer()
	order.InitFrom(journalVersion)

	return &Coordinator{
		device:    device,
		memory:    mem,
		order:     order,
		manifest:  NewManifestEngine(),
		batchSize: batchSize,
		logger:    logger.Component("coordinator"),
		peers:     make(map[DeviceID]PeerInfo),
	}
}

// HandleMessage dispatches msg per the state-machine table and returns
// whatever outbound messages the handler produced. Messages from self
// are ignored in every handler. A malformed payload is logged and
// dropped — the caller still gets a nil, nil result, never an error the
// channel would have to surface.
func (c *Coordinator) HandleMessage(msg *BroadcastMessage) ([]*BroadcastMessage, error) {
	if msg.FromDeviceID == c.device {
		return nil, nil
	}
	c.observePeer(msg.FromDeviceID)

	switch msg.Type {
	case MsgSyncRequest:
		return c.handleSyncRequest(msg)
	case MsgSyncResponse:
		return c.handleSyncResponse(msg)
	case MsgDeltaAck:
		return c.handleDeltaAck(msg)
	case MsgFullSyncRequest:
		return c.handleFullSyncRequest(msg)
	case MsgFullSyncManifestResponse:
		return c.handleFullSyncManifestResponse(msg)
	case MsgFullSyncData:
		return c.handleFullSyncData(msg)
	case MsgFullSyncComplete:
		c.logger.Info("full sync complete", "from", string(msg.FromDeviceID))
		return nil, nil
	case MsgRelayNotify:
		return nil, nil
	default:
		c.logger.Warn("dropping message with unknown type", "type", string(msg.Type))
		return nil, nil
	}
}

func (c *Coordinator) handleSyncRequest(msg *BroadcastMessage) ([]*BroadcastMessage, error) {
	var p SyncRequestPayload
	if err := msg.DecodePayload(&p); err != nil {
		c.logger.Warn("malformed SyncRequest", "error", err)
		return nil, nil
	}

	deltas := c.memory.journal.GetDeltasSince(p.VersionVector)
	if len(deltas) == 0 {
		return nil, nil
	}

	batches := chunkDeltas(deltas, c.batchSize)
	out := make([]*BroadcastMessage, 0, len(batches))
	for i, batch := range batches {
		resp, err := NewBroadcastMessage(MsgSyncResponse, c.device, SyncResponsePayload{
			Deltas:  batch,
			HasMore: i < len(batches)-1,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

func (c *Coordinator) handleSyncResponse(msg *BroadcastMessage) ([]*BroadcastMessage, error) {
	var p SyncResponsePayload
	if err := msg.DecodePayload(&p); err != nil {
		c.logger.Warn("malformed SyncResponse", "error", err)
		return nil, nil
	}

	for _, entry := range p.Deltas {
		released := c.order.Insert(entry)
		if len(released) > 0 {
			c.memory.ApplyRemoteDeltas(released)
		}
	}

	ack, err := NewBroadcastMessage(MsgDeltaAck, c.device, DeltaAckPayload{
		SourceDeviceID: msg.FromDeviceID,
		LastSeq:        c.memory.journal.Version().Get(msg.FromDeviceID),
	})
	if err != nil {
		return nil, err
	}
	return []*BroadcastMessage{ack}, nil
}

func (c *Coordinator) handleDeltaAck(msg *BroadcastMessage) ([]*BroadcastMessage, error) {
	var p DeltaAckPayload
	if err := msg.DecodePayload(&p); err != nil {
		c.logger.Warn("malformed DeltaAck", "error", err)
		return nil, nil
	}
	c.logger.Info("delta ack", "from", string(msg.FromDeviceID), "source", string(p.SourceDeviceID), "last_seq", p.LastSeq)
	if p.SourceDeviceID == c.device {
		c.recordAck(msg.FromDeviceID, p.LastSeq)
	}
	return nil, nil
}

func (c *Coordinator) observePeer(device DeviceID) {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	info := c.peers[device]
	info.LastSeen = time.Now()
	c.peers[device] = info
}

func (c *Coordinator) recordAck(device DeviceID, seq uint64) {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	info := c.peers[device]
	if seq > info.LastAckSeq {
		info.LastAckSeq = seq
	}
	c.peers[device] = info
}

// Peers returns a snapshot of the per-peer liveness bookkeeping.
func (c *Coordinator) Peers() map[DeviceID]PeerInfo {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	out := make(map[DeviceID]PeerInfo, len(c.peers))
	for d, info := range c.peers {
		out[d] = info
	}
	return out
}

func (c *Coordinator) handleFullSyncRequest(msg *BroadcastMessage) ([]*BroadcastMessage, error) {
	var p FullSyncRequestPayload
	if err := msg.DecodePayload(&p); err != nil {
		c.logger.Warn("malformed FullSyncRequest", "error", err)
		return nil, nil
	}

	local, err := c.memory.BuildManifest()
	if err != nil {
		return nil, err
	}
	plan := c.manifest.ComputePlan(local, p.Manifest)

	out := make([]*BroadcastMessage, 0, 3)

	manifestResp, err := NewBroadcastMessage(MsgFullSyncManifestResponse, c.device, FullSyncManifestResponsePayload{Manifest: local})
	if err != nil {
		return nil, err
	}
	out = append(out, manifestResp)

	dataMsgs, err := c.exportPlanMessages(plan.TheyNeed.MemoryKeys)
	if err != nil {
		return nil, err
	}
	out = append(out, dataMsgs...)

	complete, err := NewBroadcastMessage(MsgFullSyncComplete, c.device, FullSyncCompletePayload{SentCount: len(dataMsgs)})
	if err != nil {
		return nil, err
	}
	out = append(out, complete)

	return out, nil
}

func (c *Coordinator) handleFullSyncManifestResponse(msg *BroadcastMessage) ([]*BroadcastMessage, error) {
	var p FullSyncManifestResponsePayload
	if err := msg.DecodePayload(&p); err != nil {
		c.logger.Warn("malformed FullSyncManifestResponse", "error", err)
		return nil, nil
	}

	local, err := c.memory.BuildManifest()
	if err != nil {
		return nil, err
	}
	plan := c.manifest.ComputePlan(local, p.Manifest)

	dataMsgs, err := c.exportPlanMessages(plan.TheyNeed.MemoryKeys)
	if err != nil {
		return nil, err
	}

	complete, err := NewBroadcastMessage(MsgFullSyncComplete, c.device, FullSyncCompletePayload{SentCount: len(dataMsgs)})
	if err != nil {
		return nil, err
	}
	return append(dataMsgs, complete), nil
}

func (c *Coordinator) exportPlanMessages(keys []string) ([]*BroadcastMessage, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	exported, err := c.memory.ExportMissing(keys, c.device)
	if err != nil {
		return nil, err
	}

	out := make([]*BroadcastMessage, 0, len(exported))
	for _, entry := range exported {
		msg, err := NewBroadcastMessage(MsgFullSyncData, c.device, FullSyncDataPayload{
			EntityType:       entry.EntityType,
			EntityID:         entry.EntityID,
			EncryptedPayload: entry.EncryptedPayload,
			IV:               entry.IV,
			AuthTag:          entry.AuthTag,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Coordinator) handleFullSyncData(msg *BroadcastMessage) ([]*BroadcastMessage, error) {
	var p FullSyncDataPayload
	if err := msg.DecodePayload(&p); err != nil {
		c.logger.Warn("malformed FullSyncData", "error", err)
		return nil, nil
	}

	env := reconstructFromFullSyncData(p.IV, p.EncryptedPayload, msg.FromDeviceID)
	entries, err := c.memory.Decrypt(env)
	if err != nil {
		c.logger.Warn("full sync data decrypt failed, skipping entry", "error", err, "entity_id", p.EntityID)
		return nil, nil
	}

	c.memory.ApplyFullSyncEntries(entries)
	// The snapshot may have advanced the vector past sequences the order
	// buffer was still waiting on; re-seed so live deltas resume from
	// the reconciled position instead of parking behind a closed gap.
	c.order.InitFrom(c.memory.journal.Version())
	return nil, nil
}

// HandleRelayEntry is the Layer 1 inbound path: an encrypted envelope
// picked up from the relay. The relay fans out to every device on the
// user including the sender, so entries originating here are discarded
// before any decrypt attempt. Returns the number of operations applied.
func (c *Coordinator) HandleRelayEntry(entry *RelayEntry) int {
	if entry == nil || entry.SenderDeviceID == c.device {
		return 0
	}

	env := &SyncEnvelope{
		Nonce:      entry.Nonce,
		Ciphertext: entry.EncryptedPayload,
		Sender:     entry.SenderDeviceID,
		Version:    NewVersionVector(),
	}
	deltas, err := c.memory.Decrypt(env)
	if err != nil {
		c.logger.Warn("relay envelope decrypt failed, dropping", "error", err, "entry_id", entry.ID)
		return 0
	}

	applied := 0
	for _, d := range deltas {
		released := c.order.Insert(d)
		if len(released) > 0 {
			applied += c.memory.ApplyRemoteDeltas(released)
		}
	}
	return applied
}

// BuildRelayEntry encrypts every local delta newer than since into a
// relay entry addressed to userID's devices. Returns nil if there is
// nothing to send.
func (c *Coordinator) BuildRelayEntry(since *VersionVector, userID string) (*RelayEntry, error) {
	env, err := c.memory.EncryptDeltasSince(since, c.device)
	if err != nil || env == nil {
		return nil, err
	}
	return &RelayEntry{
		SenderDeviceID:   c.device,
		UserID:           userID,
		EncryptedPayload: env.Ciphertext,
		Nonce:            env.Nonce,
	}, nil
}

// Version exposes the coordinator's current causal clock, for hosts
// that track what they have already published to the relay.
func (c *Coordinator) Version() *VersionVector {
	return c.memory.journal.Version()
}

// BuildSyncRequest emits a SyncRequest carrying the current vector,
// used on reconnect or periodic catch-up.
func (c *Coordinator) BuildSyncRequest() (*BroadcastMessage, error) {
	return NewBroadcastMessage(MsgSyncRequest, c.device, SyncRequestPayload{
		VersionVector: c.memory.journal.Version().Clone(),
	})
}

// BuildFullSyncRequest emits a FullSyncRequest carrying the local
// manifest, used for long-offline recovery or explicit user action.
func (c *Coordinator) BuildFullSyncRequest() (*BroadcastMessage, error) {
	manifest, err := c.memory.BuildManifest()
	if err != nil {
		return nil, err
	}
	return NewBroadcastMessage(MsgFullSyncRequest, c.device, FullSyncRequestPayload{Manifest: manifest})
}

// PruneJournal delegates to the journal's periodic maintenance pass.
// retentionSecs <= 0 falls back to DefaultJournalRetention.
func (c *Coordinator) PruneJournal(retentionSecs int64) int {
	d := DefaultJournalRetention
	if retentionSecs > 0 {
		d = time.Duration(retentionSecs) * time.Second
	}
	return c.memory.journal.Prune(d)
}

func chunkDeltas(deltas []*DeltaEntry, size int) [][]*DeltaEntry {
	if size <= 0 {
		size = DefaultSyncBatchSize
	}
	n := int(math.Ceil(float64(len(deltas)) / float64(size)))
	out := make([][]*DeltaEntry, 0, n)
	for i := 0; i < len(deltas); i += size {
		end := i + size
		if end > len(deltas) {
			end = len(deltas)
		}
		out = append(out, deltas[i:end])
	}
	return out
}
