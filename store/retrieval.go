package store

import (
	"os"

	"github.com/DIG-Network/digstore-sub000/config"
	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/DIG-Network/digstore-sub000/urn"
)

// RetrieveByURN implements the zero-knowledge retrieval path: a caller
// presenting a URN for a store or file that does not exist gets a
// deterministic sentinel byte stream, not an error, so a storage observer
// can never distinguish "unknown" from "present but inaccessible".
func RetrieveByURN(u *urn.Urn) ([]byte, error) {
	archivePath, err := config.ArchivePath(u.StoreId.ToHex())
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(archivePath); os.IsNotExist(statErr) {
		return urn.Sentinel(u, urn.SentinelLength(u)), nil
	}

	s, err := OpenGlobal(u.StoreId.ToHex(), false)
	if err != nil {
		if kind, ok := digstoreerr.KindOf(err); ok && kind == digstoreerr.StoreNotFound {
			return urn.Sentinel(u, urn.SentinelLength(u)), nil
		}
		return nil, err
	}
	defer s.Close()

	var at *types.Hash
	if u.HasRoot {
		at = &u.RootHash
	}

	var data []byte
	var getErr error
	if u.Range != nil {
		start := uint64(0)
		if u.Range.HasStart {
			start = u.Range.Start
		}
		end := start + uint64(urn.SentinelLength(u)) - 1
		if u.Range.HasEnd {
			end = u.Range.End
		}
		data, getErr = s.GetFileRange(u.Path, start, end, at)
	} else {
		data, getErr = s.GetFile(u.Path, at)
	}

	if getErr != nil {
		if kind, ok := digstoreerr.KindOf(getErr); ok && kind == digstoreerr.FileNotFound {
			return urn.Sentinel(u, urn.SentinelLength(u)), nil
		}
		return nil, getErr
	}
	return data, nil
}
