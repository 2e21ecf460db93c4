package store

import (
	"github.com/DIG-Network/digstore-sub000/layer"
	"github.com/DIG-Network/digstore-sub000/types"
)

// Log returns every commit in root_history, newest-first, decoding each
// commit layer just far enough to recover its message and author from the
// metadata trailer.
func (s *Store) Log() ([]types.CommitLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	zero, err := loadLayerZero(s.archive)
	if err != nil {
		return nil, err
	}

	entries := make([]types.CommitLogEntry, 0, len(zero.RootHistory))
	for i := len(zero.RootHistory) - 1; i >= 0; i-- {
		rh := zero.RootHistory[i]
		data, err := s.archive.GetLayerData(rh.RootHash)
		if err != nil {
			return nil, err
		}
		decoded, err := layer.Decode(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, types.CommitLogEntry{
			RootHash:   rh.RootHash,
			Generation: rh.Generation,
			Timestamp:  rh.Timestamp,
			Message:    decoded.Metadata.Message,
			Author:     decoded.Metadata.Author,
		})
	}
	return entries, nil
}
