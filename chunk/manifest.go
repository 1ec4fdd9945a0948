package chunk

import "fmt"

// Manifest is the ordered sequence of chunk hashes composing one file.
// Order is significant: a client considers indexes [0..k-1] present and
// seeks [k..] from peers. A Manifest is append-only once a hash is added
// (spec §3).
type Manifest struct {
	Name   string
	hashes []Hash
}

// NewManifest returns an empty manifest for the given file name, bounded
// at MaxChunks the way a systems reimplementation pre-sizes a fixed-size
// array (spec §9 design note), here realized as a capacity hint on the
// backing slice rather than a hard array.
func NewManifest(name string) *Manifest {
	return &Manifest{
		Name:   name,
		hashes: make([]Hash, 0, MaxChunks),
	}
}

// Len is the number of chunks currently present.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.hashes)
}

// Hashes returns the manifest's chunk hashes in order. The returned slice
// must not be mutated by the caller.
func (m *Manifest) Hashes() []Hash {
	if m == nil {
		return nil
	}
	return m.hashes
}

// Has reports whether hash is already present anywhere in the manifest
// (full-hash compare, used by the downloader's duplicate detection in
// spec §4.4 step 4).
func (m *Manifest) Has(hash Hash) bool {
	if m == nil {
		return false
	}
	for _, h := range m.hashes {
		if h == hash {
			return true
		}
	}
	return false
}

// Append adds a chunk hash to the end of the manifest. Manifests are
// append-only: there is no Remove.
func (m *Manifest) Append(hash Hash) error {
	if len(m.hashes) >= MaxChunks {
		return fmt.Errorf("chunk: manifest %q already at MaxChunks (%d)", m.Name, MaxChunks)
	}
	m.hashes = append(m.hashes, hash)
	return nil
}

// LastN returns the last n hashes of the manifest (or all of them, if the
// manifest has fewer than n). Spec §4.4's termination edge requires
// callers to tolerate len-n being negative; LastN clamps that for them
// instead of making every call site repeat the clamp.
func (m *Manifest) LastN(n int) []Hash {
	if m == nil || n <= 0 {
		return nil
	}
	start := len(m.hashes) - n
	if start < 0 {
		start = 0
	}
	out := make([]Hash, len(m.hashes)-start)
	copy(out, m.hashes[start:])
	return out
}

// Clone returns a deep copy of the manifest's hash list, used when handing
// a peer's advertised manifest to a downloader that must not mutate the
// tracker's or peer's view of it.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := &Manifest{Name: m.Name, hashes: make([]Hash, len(m.hashes))}
	copy(c.hashes, m.hashes)
	return c
}
