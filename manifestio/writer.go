package manifestio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/holisticode/chunkfabric/chunk"
)

// Writer materializes one completed wanted file to disk.
type Writer interface {
	Write(rank int, fileName string, m *chunk.Manifest) error
}

// FileWriter writes `client<rank>_<file>` files to Dir per spec.md §6: one
// hash per line, in order, newline-terminated.
type FileWriter struct {
	Dir string
}

// Write creates (or truncates) Dir/client<rank>_<fileName> and writes m's
// hashes one per line.
func (w FileWriter) Write(rank int, fileName string, m *chunk.Manifest) error {
	path := filepath.Join(w.Dir, fmt.Sprintf("client%d_%s", rank, fileName))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("manifestio: create %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, h := range m.Hashes() {
		if _, err := bw.Write(h[:]); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
