// Package progress renders operator-facing progress bars for the
// downloader's per-file chunk counters, using github.com/vbauerster/mpb.
// This is a purely cosmetic rendering of counters the protocol already
// tracks (spec.md §4.4's `downloaded`); it has no effect on protocol state.
package progress

import (
	"sync"

	"github.com/vbauerster/mpb"
	"github.com/vbauerster/mpb/decor"
)

// Bars is a set of named progress bars, one per wanted file, advanced as
// the downloader acquires chunks.
type Bars struct {
	p    *mpb.Progress
	mu   sync.Mutex
	bars map[string]*mpb.Bar
}

// New creates an empty bar set. Bars are added by Track, or by Advance
// on first use of a file name.
func New() *Bars {
	return &Bars{
		p:    mpb.New(mpb.WithWidth(64)),
		bars: make(map[string]*mpb.Bar),
	}
}

// Track registers a bar for fileName sized to want chunks, replacing any
// existing bar for that name.
func (b *Bars) Track(fileName string, want int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if want <= 0 {
		want = 1
	}
	b.bars[fileName] = b.p.AddBar(int64(want),
		mpb.PrependDecorators(decor.Name(fileName)),
		mpb.AppendDecorators(decor.Percentage()),
	)
}

// Advance increments fileName's bar by one chunk. If Track was never
// called for fileName, it first creates a bar with a total of one chunk
// (Track with want 0).
func (b *Bars) Advance(fileName string) {
	b.mu.Lock()
	bar, ok := b.bars[fileName]
	b.mu.Unlock()
	if !ok {
		b.Track(fileName, 0)
		b.mu.Lock()
		bar = b.bars[fileName]
		b.mu.Unlock()
	}
	bar.Increment()
}

// Wait blocks until every bar has finished rendering, for use at process
// shutdown.
func (b *Bars) Wait() {
	b.p.Wait()
}
