// Package manifestio is the external-interface boundary spec.md §1 names
// as out of scope ("the input file parser", "the output writer") but §6
// still contracts to a precise byte layout. Reader/Writer are interfaces
// so the core protocol packages never import a concrete file format; the
// default implementations below satisfy spec.md §6 exactly.
package manifestio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/holisticode/chunkfabric/chunk"
)

// Reader loads one client's startup manifest: its owned files (as an
// Inventory) and its wanted file names in input order.
type Reader interface {
	Read(rank int) (inv *chunk.Inventory, wanted []string, err error)
}

// FileReader reads `in<rank>.txt` files from Dir per spec.md §6.
type FileReader struct {
	Dir string
}

// Read parses Dir/in<rank>.txt.
func (r FileReader) Read(rank int) (*chunk.Inventory, []string, error) {
	path := filepath.Join(r.Dir, fmt.Sprintf("in%d.txt", rank))
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("manifestio: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ownedCount, err := readInt(sc, "owned_count")
	if err != nil {
		return nil, nil, err
	}

	owned := make(map[chunk.FileID]*chunk.Manifest, ownedCount)
	for i := 0; i < ownedCount; i++ {
		if !sc.Scan() {
			return nil, nil, fmt.Errorf("manifestio: %s: expected file header %d", path, i)
		}
		parts := strings.Fields(sc.Text())
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("manifestio: %s: malformed file header %q", path, sc.Text())
		}
		name := parts[0]
		if len(name) > chunk.MaxNameLength {
			return nil, nil, fmt.Errorf("manifestio: %s: file name %q exceeds MaxNameLength", path, name)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, nil, fmt.Errorf("manifestio: %s: bad chunk count for %q: %w", path, name, err)
		}
		m := chunk.NewManifest(name)
		for j := 0; j < count; j++ {
			h, err := readHashLine(sc, path)
			if err != nil {
				return nil, nil, err
			}
			if err := m.Append(h); err != nil {
				return nil, nil, err
			}
		}
		owned[chunk.DeriveFileID(name)] = m
	}

	wantedCount, err := readInt(sc, "wanted_count")
	if err != nil {
		return nil, nil, err
	}
	wanted := make([]string, 0, wantedCount)
	for i := 0; i < wantedCount; i++ {
		if !sc.Scan() {
			return nil, nil, fmt.Errorf("manifestio: %s: expected wanted file name %d", path, i)
		}
		wanted = append(wanted, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return nil, nil, err
	}

	return chunk.NewInventory(owned, wanted), wanted, nil
}

func readInt(sc *bufio.Scanner, field string) (int, error) {
	if !sc.Scan() {
		return 0, fmt.Errorf("manifestio: expected %s", field)
	}
	n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return 0, fmt.Errorf("manifestio: bad %s: %w", field, err)
	}
	return n, nil
}

// readHashLine reads one line and validates/trims it to exactly
// chunk.HashSize bytes (spec.md §6: "possibly with a trailing newline that
// MUST be stripped to exactly H bytes").
func readHashLine(sc *bufio.Scanner, path string) (chunk.Hash, error) {
	if !sc.Scan() {
		return chunk.Hash{}, fmt.Errorf("manifestio: %s: expected hash line", path)
	}
	line := strings.TrimRight(sc.Text(), "\r\n")
	if len(line) != chunk.HashSize {
		return chunk.Hash{}, fmt.Errorf("manifestio: %s: hash line length %d, want %d", path, len(line), chunk.HashSize)
	}
	var h chunk.Hash
	copy(h[:], line)
	return h, nil
}
