package store

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/ignore"
	"github.com/DIG-Network/digstore-sub000/internal/metrics"
	"github.com/DIG-Network/digstore-sub000/staging"
	"github.com/DIG-Network/digstore-sub000/types"
	"golang.org/x/sync/errgroup"
)

// AddOptions configures Add. BatchSize controls how many staged records
// are handed to the staging area per StageMany call, while the worker
// count (unexported, CPU count) bounds how many files are chunked
// concurrently.
type AddOptions struct {
	Recursive     bool
	Force         bool
	RespectIgnore bool
	BatchSize     int
}

// StagingReport lists files staged by Add, in insertion order.
type StagingReport struct {
	Files []string
}

// Add resolves paths (directories expanded when Recursive), applies the
// digignore engine unless Force, chunks every resulting file in parallel,
// and batch-inserts the resulting records into the staging area.
func (s *Store) Add(paths []string, opts AddOptions) (*StagingReport, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = runtime.NumCPU() * 4
	}

	resolved, err := s.resolveAddPaths(paths, opts)
	if err != nil {
		return nil, err
	}

	type result struct {
		idx int
		sf  staging.StagedFile
	}
	results := make([]result, len(resolved))

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for i, relPath := range resolved {
		i, relPath := i, relPath
		g.Go(func() error {
			sf, err := s.buildStagedFile(relPath)
			if err != nil {
				return err
			}
			results[i] = result{idx: i, sf: sf}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &StagingReport{Files: make([]string, len(resolved))}
	batch := make([]staging.StagedFile, 0, opts.BatchSize)
	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.staging.StageMany(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}
	for _, r := range results {
		report.Files[r.idx] = r.sf.Path
		batch = append(batch, r.sf)
		if len(batch) >= opts.BatchSize {
			if err := flushBatch(); err != nil {
				return nil, err
			}
		}
	}
	if err := flushBatch(); err != nil {
		return nil, err
	}

	metrics.AddFilesProcessed.WithLabelValues(s.StoreId.ToHex()).Add(float64(len(resolved)))
	log.WithField("files", len(resolved)).Info("staged files")
	return report, nil
}

func (s *Store) resolveAddPaths(paths []string, opts AddOptions) ([]string, error) {
	var checker *ignore.Checker
	if opts.RespectIgnore && !opts.Force {
		c, err := ignore.NewChecker(s.ProjectPath)
		if err != nil {
			return nil, digstoreerr.Wrap(digstoreerr.IoError, err, "loading digignore rules")
		}
		checker = c
	}

	seen := map[string]bool{}
	var out []string

	var visit func(relPath string) error
	visit = func(relPath string) error {
		abs := s.absPath(relPath)
		info, err := os.Stat(abs)
		if err != nil {
			return digstoreerr.Wrap(digstoreerr.FileNotFound, err, "resolving add path").WithPath(relPath)
		}

		if info.IsDir() {
			if !opts.Recursive {
				return digstoreerr.New(digstoreerr.InvalidFilePath, "path is a directory; pass Recursive to add it").WithPath(relPath)
			}
			if checker != nil && relPath != "." {
				if res := checker.IsIgnored(relPath, true); res.Ignored {
					return nil
				}
			}
			entries, err := os.ReadDir(abs)
			if err != nil {
				return digstoreerr.Wrap(digstoreerr.IoError, err, "reading directory").WithPath(relPath)
			}
			names := make([]string, len(entries))
			for i, e := range entries {
				names[i] = e.Name()
			}
			sort.Strings(names)
			for _, name := range names {
				if err := visit(filepath.Join(relPath, name)); err != nil {
					return err
				}
			}
			return nil
		}

		if checker != nil {
			if res := checker.IsIgnored(relPath, false); res.Ignored {
				return nil
			}
		}
		if !seen[relPath] {
			seen[relPath] = true
			out = append(out, relPath)
		}
		return nil
	}

	for _, p := range paths {
		rel, err := filepath.Rel(s.ProjectPath, s.absPath(p))
		if err != nil {
			rel = p
		}
		rel = filepath.ToSlash(rel)
		if err := visit(rel); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) buildStagedFile(relPath string) (staging.StagedFile, error) {
	abs := s.absPath(relPath)
	result, err := s.engine.ChunkFile(abs)
	if err != nil {
		return staging.StagedFile{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return staging.StagedFile{}, digstoreerr.Wrap(digstoreerr.IoError, err, "statting file to stage").WithPath(relPath)
	}

	refs := make([]types.ChunkRef, len(result.Chunks))
	var fileBytes []byte
	for i, c := range result.Chunks {
		refs[i] = types.ChunkRef{Hash: c.Hash, OffsetInFile: c.OffsetInFile, Size: c.Size}
		fileBytes = append(fileBytes, c.Data...)
	}

	return staging.StagedFile{
		Path:      relPath,
		Hash:      types.Of(fileBytes),
		Size:      uint64(info.Size()),
		Mtime:     info.ModTime().Unix(),
		HasMtime:  true,
		ChunkRefs: refs,
	}, nil
}
