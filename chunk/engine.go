// Package chunk implements content-defined chunking. Engine picks one of
// three documented strategies so that chunk counts stay predictable:
//
//   - SmallFile:       whole file in one chunk (size <= SmallFileThreshold)
//   - ContentDefined:  FastCDC-style gear-hash boundaries (the common path)
//   - FixedSizeMmap:   mmap'd fixed 1MiB cuts for very large, unchanged files
package chunk

import (
	"bufio"
	"io"
	"os"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/internal/logctx"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/edsrzf/mmap-go"
)

var log = logctx.For("chunk")

// Strategy records which chunking path produced a Result, so callers (and
// tests) can predict chunk counts without re-deriving the thresholds.
type Strategy string

const (
	SmallFile      Strategy = "small_file"
	ContentDefined Strategy = "content_defined"
	FixedSizeMmap  Strategy = "fixed_size_mmap"
)

const (
	// DefaultSmallFileThreshold is the "≤16 KiB" single-chunk fast path.
	DefaultSmallFileThreshold = 16 * 1024
	// DefaultMmapThreshold is the "~10 MiB" large-file fast path.
	DefaultMmapThreshold = 10 * 1024 * 1024
	// FixedMmapChunkSize is the cut size used by the mmap fast path.
	FixedMmapChunkSize = 1024 * 1024
	// readBufSize bounds how much unconsumed input Engine buffers while
	// streaming, keeping peak memory at O(MaxSize + readBufSize).
	readBufSize = 64 * 1024
)

// Engine is the chunking entry point used by store.Add.
type Engine struct {
	cfg                Config
	cutter             *cutter
	SmallFileThreshold int
	MmapThreshold      int64
}

// NewEngine validates cfg and builds an Engine with default thresholds.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:                cfg,
		cutter:             newCutter(cfg),
		SmallFileThreshold: DefaultSmallFileThreshold,
		MmapThreshold:      DefaultMmapThreshold,
	}, nil
}

// Result is the output of chunking one file.
type Result struct {
	Chunks   []types.Chunk
	Strategy Strategy
}

// ChunkBytes content-defines chunks across an in-memory buffer. Used
// directly by the small-file fast path and by tests; ChunkReader is the
// streaming entry point for everything else.
func (e *Engine) ChunkBytes(data []byte) []types.Chunk {
	if len(data) == 0 {
		return nil
	}
	var chunks []types.Chunk
	var offset uint64
	for len(data) > 0 {
		n := e.cutter.cut(data)
		piece := data[:n]
		chunks = append(chunks, types.Chunk{
			Hash:         types.Of(piece),
			OffsetInFile: offset,
			Size:         uint32(n),
			Data:         append([]byte(nil), piece...),
		})
		offset += uint64(n)
		data = data[n:]
	}
	return chunks
}

// ChunkReader streams r through the content-defined chunker with bounded
// memory: it keeps at most one window of unconsumed bytes no larger than
// MaxSize+readBufSize, regardless of the caller's own buffer size, so the
// chunk boundaries it finds don't depend on how the caller buffers reads.
func (e *Engine) ChunkReader(r io.Reader) ([]types.Chunk, error) {
	br := bufio.NewReaderSize(r, readBufSize)
	var buf []byte
	var chunks []types.Chunk
	var offset uint64
	readBuf := make([]byte, readBufSize)

	emit := func(n int) {
		piece := buf[:n]
		chunks = append(chunks, types.Chunk{
			Hash:         types.Of(piece),
			OffsetInFile: offset,
			Size:         uint32(n),
			Data:         append([]byte(nil), piece...),
		})
		offset += uint64(n)
		buf = append([]byte(nil), buf[n:]...)
	}

	for {
		n, rerr := br.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			// Drain complete chunks while we're holding more than one
			// window's worth, so memory never grows past MaxSize*2.
			for len(buf) > e.cfg.MaxSize {
				cut := e.cutter.cut(buf)
				emit(cut)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, digstoreerr.Wrap(digstoreerr.IoError, rerr, "reading stream for chunking")
		}
	}
	for len(buf) > 0 {
		cut := e.cutter.cut(buf)
		emit(cut)
	}
	return chunks, nil
}

// ChunkFile dispatches to the appropriate strategy based on file size and
// returns which one was used, so callers can record how a file was chunked.
func (e *Engine) ChunkFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, digstoreerr.Wrap(digstoreerr.IoError, err, "opening file for chunking").WithPath(path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, digstoreerr.Wrap(digstoreerr.IoError, err, "statting file for chunking").WithPath(path)
	}
	size := info.Size()

	switch {
	case size <= int64(e.SmallFileThreshold):
		data := make([]byte, size)
		if _, err := io.ReadFull(f, data); err != nil && err != io.EOF {
			return Result{}, digstoreerr.Wrap(digstoreerr.IoError, err, "reading small file").WithPath(path)
		}
		return Result{Chunks: e.ChunkBytes(data), Strategy: SmallFile}, nil

	case size >= e.MmapThreshold:
		chunks, err := e.chunkMmap(f, size)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("mmap chunking failed, falling back to streaming")
			if _, serr := f.Seek(0, io.SeekStart); serr != nil {
				return Result{}, digstoreerr.Wrap(digstoreerr.IoError, serr, "rewinding file after mmap failure").WithPath(path)
			}
			streamed, serr := e.ChunkReader(f)
			if serr != nil {
				return Result{}, serr
			}
			return Result{Chunks: streamed, Strategy: ContentDefined}, nil
		}
		return Result{Chunks: chunks, Strategy: FixedSizeMmap}, nil

	default:
		chunks, err := e.ChunkReader(f)
		if err != nil {
			return Result{}, err
		}
		return Result{Chunks: chunks, Strategy: ContentDefined}, nil
	}
}

// chunkMmap implements the large-file fast path: fixed FixedMmapChunkSize
// cuts over a memory-mapped view. Boundaries are size-based, not
// content-defined, because the whole file still dedups correctly when
// unchanged; the tradeoff is that insertions/deletions in such files are
// not chunk-local.
func (e *Engine) chunkMmap(f *os.File, size int64) ([]types.Chunk, error) {
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.IoError, err, "mmap failed")
	}
	defer m.Unmap()

	var chunks []types.Chunk
	var offset uint64
	data := []byte(m)
	for len(data) > 0 {
		n := FixedMmapChunkSize
		if n > len(data) {
			n = len(data)
		}
		piece := data[:n]
		chunks = append(chunks, types.Chunk{
			Hash:         types.Of(piece),
			OffsetInFile: offset,
			Size:         uint32(n),
			Data:         append([]byte(nil), piece...),
		})
		offset += uint64(n)
		data = data[n:]
	}
	return chunks, nil
}
