// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package registry holds the tracker's global state: per-client
// inventories and the per-file swarm membership derived from them (spec
// §3). It is the direct descendant of storage/netstore.go's NetStore: a
// mutex-guarded map plus an LRU cache, except here the cache fronts a
// cheap-to-recompute derived view (swarm membership) rather than
// in-flight chunk fetches.
package registry

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/metrics"
	"github.com/holisticode/chunkfabric/transport"
)

// swarmCacheSize bounds the LRU of precomputed swarm sets. A real
// deployment's file-id space is tiny (spec §9: ids are the digit suffix
// of a short file name), so this is generous headroom, not a meaningful
// eviction policy.
const swarmCacheSize = 4096

// PeerEntry is one member of a file's swarm, as returned to a SWARM query:
// the peer's rank and the manifest it currently advertises.
type PeerEntry struct {
	Rank     transport.Rank
	Manifest *chunk.Manifest
}

type clientRecord struct {
	kind  chunk.Kind
	owned map[chunk.FileID]*chunk.Manifest
}

// Registry is the tracker's inventory[], swarms[] and finished_count from
// spec §3, all behind one lock. Swarms are never stored directly; they are
// always recomputed from inventory (spec §4.2: "a cheap rebuild over all
// clients") and the LRU only avoids repeating that rebuild between
// updates.
type Registry struct {
	mu sync.RWMutex

	inventory map[transport.Rank]*clientRecord
	swarms    *lru.Cache // chunk.FileID -> []PeerEntry; purged on intake, one file dropped per update

	nonSeeders map[transport.Rank]struct{} // ranks observed at startup with kind != SEEDER
	finished   map[transport.Rank]struct{}

	lastWanted map[transport.Rank][]chunk.FileID

	maxFileID chunk.FileID
}

// New creates an empty Registry.
func New() *Registry {
	cache, _ := lru.New(swarmCacheSize)
	return &Registry{
		inventory:  make(map[transport.Rank]*clientRecord),
		swarms:     cache,
		nonSeeders: make(map[transport.Rank]struct{}),
		finished:   make(map[transport.Rank]struct{}),
		lastWanted: make(map[transport.Rank][]chunk.FileID),
	}
}

// RegisterIntake records a client's startup inventory (spec §4.2: "Absorb
// every client's startup inventory"). Called once per client rank, in
// rank order, during the INTAKE phase.
func (r *Registry) RegisterIntake(rank transport.Rank, kind chunk.Kind, owned map[chunk.FileID]*chunk.Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &clientRecord{kind: kind, owned: owned}
	r.inventory[rank] = rec
	if kind != chunk.KindSeeder {
		r.nonSeeders[rank] = struct{}{}
	}
	for id := range owned {
		if id > r.maxFileID {
			r.maxFileID = id
		}
	}
	r.invalidateAll()
}

// ApplyUpdate appends newly-reported hashes to inventory[rank][file] -
// allocating the file slot if this is the sender's first chunk of it
// (spec §4.2: "allocating that file-slot if the sender did not previously
// own the file") - and drops that file's cached swarm, so the next Swarm
// call rebuilds it over all clients. name is only used if the file slot
// must be created from scratch.
func (r *Registry) ApplyUpdate(rank transport.Rank, file chunk.FileID, name string, hashes []chunk.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.inventory[rank]
	if !ok {
		return fmt.Errorf("registry: update from unknown rank %d", rank)
	}
	if rec.owned == nil {
		rec.owned = make(map[chunk.FileID]*chunk.Manifest)
	}
	m, ok := rec.owned[file]
	if !ok {
		m = chunk.NewManifest(name)
		rec.owned[file] = m
	}
	for _, h := range hashes {
		if err := m.Append(h); err != nil {
			return err
		}
	}
	if file > r.maxFileID {
		r.maxFileID = file
	}
	r.invalidate(file)
	metrics.Inc(metrics.MetricSwarmRebuilds, 1)
	return nil
}

// invalidate drops the cached swarm set for one file; the next Swarm call
// rebuilds it.
func (r *Registry) invalidate(file chunk.FileID) {
	r.swarms.Remove(file)
}

func (r *Registry) invalidateAll() {
	r.swarms.Purge()
}

// Swarm returns the current swarm for file: every rank (other than
// `exclude`, typically the querying client itself per spec §3's "no client
// observes its own rank in a swarm returned to it") that owns at least one
// chunk of it. Rank 0 (the tracker) never appears, since it never owns
// files.
func (r *Registry) Swarm(file chunk.FileID, exclude transport.Rank) []PeerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.swarms.Get(file); ok {
		return filterSelf(cached.([]PeerEntry), exclude)
	}

	var out []PeerEntry
	for rank, rec := range r.inventory {
		if rank == 0 {
			continue
		}
		m, ok := rec.owned[file]
		if !ok || m.Len() == 0 {
			continue
		}
		out = append(out, PeerEntry{Rank: rank, Manifest: m})
	}
	r.swarms.Add(file, out)
	return filterSelf(out, exclude)
}

func filterSelf(entries []PeerEntry, exclude transport.Rank) []PeerEntry {
	if exclude < 0 {
		return entries
	}
	out := make([]PeerEntry, 0, len(entries))
	for _, e := range entries {
		if e.Rank != exclude {
			out = append(out, e)
		}
	}
	return out
}

// RememberWanted records the file ids a rank asked about in its most
// recent SWARM query, so a later GIVE_PEERS (which carries no file list of
// its own, per spec §4.1) can be answered with a fresh swarm snapshot for
// the same files - the supplemented behavior for spec §9 open question 3.
func (r *Registry) RememberWanted(rank transport.Rank, files []chunk.FileID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]chunk.FileID, len(files))
	copy(cp, files)
	r.lastWanted[rank] = cp
}

// LastWanted returns the file ids remembered for rank by RememberWanted.
func (r *Registry) LastWanted(rank transport.Rank) []chunk.FileID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]chunk.FileID, len(r.lastWanted[rank]))
	copy(cp, r.lastWanted[rank])
	return cp
}

// MaxFileID is the largest file id observed across every client's
// inventory; spec §4.2 uses it to size the swarm table ("swarms are
// 1-indexed externally").
func (r *Registry) MaxFileID() chunk.FileID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxFileID
}

// NonSeederCount is the number of clients observed at startup with a kind
// other than SEEDER - the denominator spec §4.6's SERVING->DRAINING
// transition compares finished_count against.
func (r *Registry) NonSeederCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nonSeeders)
}

// MarkFinished records that rank sent FINISHED_DOWN_ALL, promoting a PEER
// to SEEDER in the tracker's view (spec §4.6). It returns true the first
// time this rank is marked finished (repeated FINISHED_DOWN_ALL messages
// from the same rank are idempotent here, since the wire protocol does
// not forbid a client from sending it more than once).
func (r *Registry) MarkFinished(rank transport.Rank) (firstTime bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.inventory[rank]; ok && rec.kind == chunk.KindPeer {
		rec.kind = chunk.KindSeeder
	}
	if _, already := r.finished[rank]; already {
		return false
	}
	r.finished[rank] = struct{}{}
	metrics.Inc(metrics.MetricClientsFinished, 1)
	return true
}

// FinishedCount is finished_count from spec §3.
func (r *Registry) FinishedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.finished)
}

// IsDone reports whether every non-seeder client observed at startup has
// reported finished (spec §4.6: SERVING -> DRAINING).
func (r *Registry) IsDone() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.finished) >= len(r.nonSeeders)
}

// Kind returns the tracker's current view of rank's kind, or
// chunk.KindUnknown if rank was never registered.
func (r *Registry) Kind(rank transport.Rank) chunk.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.inventory[rank]
	if !ok {
		return chunk.KindUnknown
	}
	return rec.kind
}

// Ranks returns every rank the tracker has intake'd, in ascending order.
func (r *Registry) Ranks() []transport.Rank {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]transport.Rank, 0, len(r.inventory))
	for rank := range r.inventory {
		out = append(out, rank)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot is a read-only view used by the debug HTTP surface (see
// tracker/http.go) - grounded on api/inspector.go's Has/DeliveriesPerPeer
// style introspection methods.
type Snapshot struct {
	FinishedCount    int
	NonSeederCount   int
	MaxFileID        chunk.FileID
	RanksByKind      map[string][]transport.Rank
}

// Snapshot returns a consistent point-in-time view of the registry.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byKind := map[string][]transport.Rank{}
	for rank, rec := range r.inventory {
		byKind[rec.kind.String()] = append(byKind[rec.kind.String()], rank)
	}
	return Snapshot{
		FinishedCount:  len(r.finished),
		NonSeederCount: len(r.nonSeeders),
		MaxFileID:      r.maxFileID,
		RanksByKind:    byKind,
	}
}
