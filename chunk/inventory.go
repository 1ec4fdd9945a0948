package chunk

import "sync"

// Inventory is a client's view of the files it owns and wants, per spec §3.
// The zero value is not usable; use NewInventory.
type Inventory struct {
	mu     sync.RWMutex
	owned  map[FileID]*Manifest
	wanted []string
	kind   Kind
}

// NewInventory builds an Inventory, deriving Kind from the sizes of the
// owned/wanted sets per spec §3.
func NewInventory(owned map[FileID]*Manifest, wanted []string) *Inventory {
	if owned == nil {
		owned = make(map[FileID]*Manifest)
	}
	return &Inventory{
		owned:  owned,
		wanted: wanted,
		kind:   DeriveKind(len(owned), len(wanted)),
	}
}

func (inv *Inventory) Kind() Kind {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.kind
}

// PromoteToSeeder is called when a PEER finishes downloading everything it
// wanted (spec §4.6: PEER -> SEEDER on FINISHED_DOWN_ALL).
func (inv *Inventory) PromoteToSeeder() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.kind == KindPeer {
		inv.kind = KindSeeder
	}
}

func (inv *Inventory) Wanted() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]string, len(inv.wanted))
	copy(out, inv.wanted)
	return out
}

// Manifest returns the manifest tracked for f, creating an empty one on
// first touch as spec §4.4 step 3 requires ("create the owned entry on
// first touch").
func (inv *Inventory) Manifest(f FileID, name string) *Manifest {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	m, ok := inv.owned[f]
	if !ok {
		m = NewManifest(name)
		inv.owned[f] = m
	}
	return m
}

// ManifestIfPresent returns the manifest for f without creating one,
// reporting ok=false if the client does not track f at all.
func (inv *Inventory) ManifestIfPresent(f FileID) (*Manifest, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	m, ok := inv.owned[f]
	return m, ok
}

// Owned returns a snapshot of the owned file ids. Used by the membership
// client to stream the HASH inventory at startup.
func (inv *Inventory) Owned() map[FileID]*Manifest {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make(map[FileID]*Manifest, len(inv.owned))
	for id, m := range inv.owned {
		out[id] = m
	}
	return out
}
