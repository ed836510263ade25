package syncengine

import "time"

// FullSyncManifest is an inventory of entity identifiers used to plan
// long-offline reconciliation. ConversationIDs and SettingKeys may be
// empty in minimal implementations that only synchronize memory
// entries.
type FullSyncManifest struct {
	MemoryKeys      []string  `json:"memory_keys"`
	ConversationIDs []string  `json:"conversation_ids,omitempty"`
	SettingKeys     []string  `json:"setting_keys,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// FullSyncPlan is the pair of set differences computed by the Manifest
// Engine: what the local side still needs, and what it must still send.
type FullSyncPlan struct {
	WeNeed   FullSyncManifest
	TheyNeed FullSyncManifest
}

// ManifestEngine computes symmetric set differences between two
// manifests. It holds no state; its only job is pure set arithmetic over
// opaque string identifiers.
type ManifestEngine struct{}

// NewManifestEngine returns a ManifestEngine. It has no fields because
// the computation depends only on its arguments.
func NewManifestEngine() *ManifestEngine {
	return &ManifestEngine{}
}

// ComputePlan returns, for each of the three identifier sets, what the
// local side needs from remote and what remote still needs from local.
func (ManifestEngine) ComputePlan(local, remote FullSyncManifest) FullSyncPlan {
	return FullSyncPlan{
		WeNeed: FullSyncManifest{
			MemoryKeys:      setDifference(remote.MemoryKeys, local.MemoryKeys),
			ConversationIDs: setDifference(remote.ConversationIDs, local.ConversationIDs),
			SettingKeys:     setDifference(remote.SettingKeys, local.SettingKeys),
		},
		TheyNeed: FullSyncManifest{
			MemoryKeys:      setDifference(local.MemoryKeys, remote.MemoryKeys),
			ConversationIDs: setDifference(local.ConversationIDs, remote.ConversationIDs),
			SettingKeys:     setDifference(local.SettingKeys, remote.SettingKeys),
		},
	}
}

// setDifference returns the elements of a not present in b. Order of
// the result is irrelevant to callers, but is kept stable (first-seen)
// for deterministic tests.
func setDifference(a, b []string) []string {
	exclude := make(map[string]struct{}, len(b))
	for _, id := range b {
		exclude[id] = struct{}{}
	}

	out := make([]string, 0)
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		if _, skip := exclude[id]; skip {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
