// Package store implements component F: the orchestrator that glues
// chunking, layer encoding, the archive container, the staging area, and
// URN-based retrieval into init/open/add/commit/get operations.
package store

import (
	"crypto/rand"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DIG-Network/digstore-sub000/archive"
	"github.com/DIG-Network/digstore-sub000/chunk"
	"github.com/DIG-Network/digstore-sub000/config"
	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/internal/logctx"
	"github.com/DIG-Network/digstore-sub000/layer"
	"github.com/DIG-Network/digstore-sub000/staging"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/DIG-Network/digstore-sub000/urn"
	"github.com/DIG-Network/digstore-sub000/wallet"
)

var log = logctx.For("store")

const digstoreVersion = "1.0.0"
const formatVersion = "1.0"
const protocolVersion = "1.0"

// Store is the top-level handle returned by Init/Open/OpenGlobal. A project
// directory is optional — OpenGlobal leaves ProjectPath empty.
type Store struct {
	ProjectPath string
	StoreId     types.StoreId
	Encrypted   bool
	Wallet      wallet.KeySource

	mu      sync.Mutex
	archive *archive.Archive
	staging *staging.Area
	engine  *chunk.Engine

	// knownChunks mirrors the chunk-hash -> owning-layer-hash
	// relationship across every Full layer already in the archive, so
	// Commit's dedup check and GetFile's cross-layer chunk resolution never
	// need to rescan the whole archive per call. A chunk's owning layer may
	// be older than the FileEntry referencing it, due to dedup.
	knownChunks map[types.Hash]types.Hash
}

// InitOptions configures store.Init.
type InitOptions struct {
	Encrypted  bool
	ChunkConfig chunk.Config
}

// Init creates a brand-new store: a fresh archive with Layer 0, and a
// ".digstore" descriptor in projectPath. Fails with StoreAlreadyExists if
// the descriptor is already there.
func Init(projectPath string, opts InitOptions) (*Store, error) {
	cfg := opts.ChunkConfig
	if (cfg == chunk.Config{}) {
		cfg = chunk.DefaultConfig()
	}
	engine, err := chunk.NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	var idBytes [types.Size]byte
	if _, err := io.ReadFull(rand.Reader, idBytes[:]); err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.IoError, err, "generating store id")
	}
	storeId := types.FromBytes(idBytes)

	archivePath, err := config.ArchivePath(storeId.ToHex())
	if err != nil {
		return nil, err
	}
	a, err := archive.Open(archivePath)
	if err != nil {
		return nil, err
	}

	stagingPath, err := config.StagingPath(storeId.ToHex())
	if err != nil {
		a.Close()
		return nil, err
	}
	stagingArea := staging.New(stagingPath)
	if err := stagingArea.Load(); err != nil {
		a.Close()
		return nil, err
	}

	s := &Store{
		ProjectPath: projectPath,
		StoreId:     storeId,
		Encrypted:   opts.Encrypted,
		archive:     a,
		staging:     stagingArea,
		engine:      engine,
		knownChunks: map[types.Hash]types.Hash{},
	}

	zero := types.LayerZero{
		DigstoreVersion: digstoreVersion,
		FormatVersion:   formatVersion,
		ProtocolVersion: protocolVersion,
		StoreId:         storeId.ToHex(),
		CreatedAt:       time.Now().Unix(),
		Config: types.LayerZeroConfig{
			ChunkSize:   cfg.AvgSize,
			Compression: "none",
		},
	}
	if err := s.saveLayerZero(&zero); err != nil {
		a.Close()
		return nil, err
	}

	if err := config.WriteDescriptor(projectPath, config.DigstoreDescriptor{
		Version:   digstoreVersion,
		StoreId:   storeId.ToHex(),
		Encrypted: opts.Encrypted,
	}); err != nil {
		a.Close()
		return nil, err
	}

	log.WithFields(map[string]interface{}{"store_id": storeId.ToHex(), "path": projectPath}).Info("initialized store")
	return s, nil
}

// Open reads projectPath/.digstore and loads the archive it points at. It
// never creates a missing archive: a missing archive returns StoreNotFound
// rather than being silently auto-recreated.
func Open(projectPath string) (*Store, error) {
	d, err := config.ReadDescriptor(projectPath)
	if err != nil {
		return nil, err
	}
	s, err := openByStoreId(d.StoreId, d.Encrypted)
	if err != nil {
		return nil, err
	}
	s.ProjectPath = projectPath
	return s, nil
}

// OpenGlobal loads a store by id with no project context (used by URN-based
// retrieval and by CLI commands operating outside a project directory).
// encrypted must be supplied by the caller: without a ".digstore"
// descriptor to read, the core has no other source for that flag.
func OpenGlobal(storeIdHex string, encrypted bool) (*Store, error) {
	return openByStoreId(storeIdHex, encrypted)
}

func openByStoreId(storeIdHex string, encrypted bool) (*Store, error) {
	archivePath, err := config.ArchivePath(storeIdHex)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		return nil, digstoreerr.New(digstoreerr.StoreNotFound, "archive file not found for store").WithPath(archivePath)
	}

	storeId, err := types.FromHex(storeIdHex)
	if err != nil {
		return nil, err
	}

	a, err := archive.Open(archivePath)
	if err != nil {
		return nil, err
	}

	zero, err := loadLayerZero(a)
	if err != nil {
		a.Close()
		return nil, err
	}

	stagingPath, err := config.StagingPath(storeIdHex)
	if err != nil {
		a.Close()
		return nil, err
	}
	stagingArea := staging.New(stagingPath)
	if err := stagingArea.Load(); err != nil {
		a.Close()
		return nil, err
	}

	engine, err := chunk.NewEngine(chunk.Config{
		MinSize: zero.Config.ChunkSize / 2,
		AvgSize: zero.Config.ChunkSize,
		MaxSize: zero.Config.ChunkSize * 4,
	})
	if err != nil {
		// a zero-value/missing config section falls back to defaults rather
		// than failing Open over a cosmetic field.
		engine, err = chunk.NewEngine(chunk.DefaultConfig())
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	s := &Store{
		StoreId:     storeId,
		Encrypted:   encrypted,
		archive:     a,
		staging:     stagingArea,
		engine:      engine,
		knownChunks: map[types.Hash]types.Hash{},
	}
	if err := s.loadKnownChunks(); err != nil {
		a.Close()
		return nil, err
	}
	log.WithField("store_id", storeIdHex).Info("opened store")
	return s, nil
}

// Close releases the archive file handle and flushes staging.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.staging.Flush(); err != nil {
		return err
	}
	return s.archive.Close()
}

func (s *Store) absPath(relPath string) string {
	if s.ProjectPath == "" {
		return relPath
	}
	return filepath.Join(s.ProjectPath, relPath)
}

// chunkURN builds the fixed (store_id, path)-only URN used to derive a
// per-path encryption key for at-rest chunk bytes. Deliberately omits the
// root hash: the same path's key must stay stable across commits so an
// older layer's ciphertext for a re-dedup'd chunk can still be decrypted.
func (s *Store) chunkURN(path string) *urn.Urn {
	return &urn.Urn{StoreId: s.StoreId, Path: path}
}

func loadLayerZero(a *archive.Archive) (*types.LayerZero, error) {
	data, err := a.GetLayerData(types.Zero)
	if err != nil {
		return nil, err
	}
	var z types.LayerZero
	if err := json.Unmarshal(data, &z); err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "decoding layer zero payload")
	}
	return &z, nil
}

func (s *Store) saveLayerZero(z *types.LayerZero) error {
	data, err := json.Marshal(z)
	if err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "encoding layer zero payload")
	}
	return s.archive.OverwriteLayerZero(data)
}

// loadKnownChunks decodes every non-zero layer once at Open time, building
// the chunk-hash -> owning-layer-hash map Commit and GetFile both rely on.
// Acceptable cost for a single-writer, local-first store; an orphaned layer
// (present in the archive but absent from root_history) is logged and
// skipped rather than treated as corruption.
func (s *Store) loadKnownChunks() error {
	zero, err := loadLayerZero(s.archive)
	if err != nil {
		return err
	}
	referenced := map[types.Hash]bool{}
	for _, rh := range zero.RootHistory {
		referenced[rh.RootHash] = true
	}

	for _, entry := range s.archive.ListLayers() {
		if entry.LayerHash == types.Zero {
			continue
		}
		if !referenced[entry.LayerHash] {
			log.WithField("layer", entry.LayerHash.ToHex()).Warn("ignoring orphaned layer not listed in root_history")
			continue
		}
		data, err := s.archive.GetLayerData(entry.LayerHash)
		if err != nil {
			return err
		}
		decoded, err := layer.Decode(data)
		if err != nil {
			return err
		}
		for _, ci := range decoded.ChunkIndex {
			if _, ok := s.knownChunks[ci.Hash]; !ok {
				s.knownChunks[ci.Hash] = entry.LayerHash
			}
		}
	}
	return nil
}
