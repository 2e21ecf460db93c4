// Package metrics exposes prometheus instrumentation for store operations,
// in the same promauto-package-var style used for yellowstone-faithful's
// metrics package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CommitDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "digstore_commit_duration_seconds",
		Help:    "Time spent sealing staged files into a new layer",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	},
	[]string{"store_id"},
)

var BytesWritten = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "digstore_bytes_written_total",
		Help: "Bytes of new chunk data appended to the archive",
	},
	[]string{"store_id"},
)

var ChunksDeduped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "digstore_chunks_deduped_total",
		Help: "Chunks skipped during commit because their hash already exists in the archive",
	},
	[]string{"store_id"},
)

var ChunkCacheHits = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "digstore_chunk_cache_hits_total",
		Help: "Chunk data served from the archive's in-memory LRU cache",
	},
	[]string{"store_id"},
)

var ChunkCacheMisses = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "digstore_chunk_cache_misses_total",
		Help: "Chunk data served from disk after an LRU miss",
	},
	[]string{"store_id"},
)

var AddFilesProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "digstore_add_files_processed_total",
		Help: "Files chunked and staged by the add pipeline",
	},
	[]string{"store_id"},
)

// CacheHitRatio is a derived convenience gauge — Prometheus queries can
// compute the same value from ChunkCacheHits/ChunkCacheMisses directly.
// Nothing in the core sets it.
var CacheHitRatio = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "digstore_chunk_cache_hit_ratio",
		Help: "Chunk cache hits / (hits + misses) as of the last commit",
	},
	[]string{"store_id"},
)
