package types

// Chunk is a content-addressed byte slice produced by the chunking engine.
// Hash is always SHA-256(Data); OffsetInFile locates it within the file it
// was cut from (not within the archive — that mapping lives in the layer's
// chunk index).
type Chunk struct {
	Hash         Hash
	OffsetInFile uint64
	Size         uint32
	Data         []byte
}

// ChunkRef is the reference a FileEntry carries for one of its chunks: the
// hash is resolved globally across the archive, because an owning chunk may
// live in an older layer than the FileEntry referencing it (dedup).
type ChunkRef struct {
	Hash         Hash
	OffsetInFile uint64
	Size         uint32
}

// FileMetadata carries POSIX-ish attributes plus the flags the orchestrator
// needs to implement newest-first-wins retrieval (Deleted) and the digignore
// pipeline (nothing else reads Mode/Mtime beyond passthrough today).
type FileMetadata struct {
	Mode    uint32
	Mtime   int64
	Deleted bool
}

// FileEntry records one file as committed into a layer. Hash is SHA-256 of
// the concatenation of the file's chunks' data in offset order.
type FileEntry struct {
	Path      string
	Hash      Hash
	Size      uint64
	ChunkRefs []ChunkRef
	Metadata  FileMetadata
}

// LayerType tags a layer's role. Delta is reserved by the wire format but
// never produced by this core.
type LayerType uint8

const (
	LayerTypeHeader LayerType = iota
	LayerTypeFull
	LayerTypeDelta
)

func (t LayerType) String() string {
	switch t {
	case LayerTypeHeader:
		return "header"
	case LayerTypeFull:
		return "full"
	case LayerTypeDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// RootHistoryEntry is one append-only record in Layer 0's root_history.
type RootHistoryEntry struct {
	RootHash   Hash   `json:"root_hash"`
	Generation uint64 `json:"generation"`
	Timestamp  int64  `json:"timestamp"`
	LayerCount uint64 `json:"layer_count"`
}

// CommitLogEntry pairs one root_history record with the message/author the
// commit layer's metadata trailer carries, newest-first in Store.Log.
type CommitLogEntry struct {
	RootHash   Hash
	Generation uint64
	Timestamp  int64
	Message    string
	Author     string
}

// LayerZeroConfig is the config sub-object of the Layer 0 payload.
type LayerZeroConfig struct {
	ChunkSize   int    `json:"chunk_size"`
	Compression string `json:"compression"`
}

// LayerZero is the special, mutable-in-place layer stored at the zero hash.
type LayerZero struct {
	DigstoreVersion string             `json:"digstore_version"`
	FormatVersion   string             `json:"format_version"`
	ProtocolVersion string             `json:"protocol_version"`
	StoreId         string             `json:"store_id"`
	CreatedAt       int64              `json:"created_at"`
	Config          LayerZeroConfig    `json:"config"`
	RootHistory     []RootHistoryEntry `json:"root_history"`
}

// LatestRoot returns the most recent root_history entry, ok=false if empty
// (no commits yet is not itself an error).
func (z *LayerZero) LatestRoot() (RootHistoryEntry, bool) {
	if len(z.RootHistory) == 0 {
		return RootHistoryEntry{}, false
	}
	return z.RootHistory[len(z.RootHistory)-1], true
}
