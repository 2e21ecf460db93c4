// Package urn implements component G: URN grammar parsing, the public-key
// storage-address transform, AES-256-GCM chunk encryption, and the
// deterministic sentinel byte stream returned for unknown URNs.
package urn

import (
	"strconv"
	"strings"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
)

const scheme = "urn:dig:chia:"

// ByteRange is an inclusive [Start, End] fragment; either bound may be
// absent (HasStart or HasEnd false on that side).
type ByteRange struct {
	Start      uint64
	End        uint64
	HasStart   bool
	HasEnd     bool
}

// Urn is a parsed "urn:dig:chia:<store_id>[:<root_hash>]/<path>[#bytes=s-e]".
type Urn struct {
	StoreId  types.StoreId
	RootHash types.Hash
	HasRoot  bool
	Path     string
	Range    *ByteRange
}

// Parse validates and decomposes a canonical URN string.
func Parse(s string) (*Urn, error) {
	if !strings.HasPrefix(s, scheme) {
		return nil, digstoreerr.New(digstoreerr.InvalidUrn, "missing urn:dig:chia: scheme prefix")
	}
	rest := s[len(scheme):]

	body, frag, hasFrag := strings.Cut(rest, "#")

	slashIdx := strings.Index(body, "/")
	if slashIdx < 0 {
		return nil, digstoreerr.New(digstoreerr.UrnParsingFailed, "urn has no path segment")
	}
	idPart := body[:slashIdx]
	path := body[slashIdx+1:]
	if path == "" {
		return nil, digstoreerr.New(digstoreerr.UrnParsingFailed, "urn path is empty")
	}
	if err := validatePath(path); err != nil {
		return nil, err
	}

	u := &Urn{Path: path}

	storeHex, rootHex, hasRootHex := strings.Cut(idPart, ":")
	storeId, err := types.FromHex(storeHex)
	if err != nil {
		return nil, digstoreerr.New(digstoreerr.UrnParsingFailed, "invalid store id hex in urn")
	}
	u.StoreId = storeId
	if hasRootHex {
		root, err := types.FromHex(rootHex)
		if err != nil {
			return nil, digstoreerr.New(digstoreerr.UrnParsingFailed, "invalid root hash hex in urn")
		}
		u.RootHash = root
		u.HasRoot = true
	}

	if hasFrag {
		r, err := parseFragment(frag)
		if err != nil {
			return nil, err
		}
		u.Range = r
	}

	return u, nil
}

func validatePath(path string) error {
	if strings.HasPrefix(path, "/") {
		return digstoreerr.New(digstoreerr.UrnParsingFailed, "urn path must not begin with a slash")
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return digstoreerr.New(digstoreerr.UrnParsingFailed, "urn path contains an empty or .. segment")
		}
	}
	return nil
}

func parseFragment(frag string) (*ByteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(frag, prefix) {
		return nil, digstoreerr.New(digstoreerr.InvalidByteRange, "fragment must be bytes=<start>-<end>")
	}
	spec := frag[len(prefix):]
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, digstoreerr.New(digstoreerr.InvalidByteRange, "byte range missing '-' separator")
	}

	r := &ByteRange{}
	if startStr != "" {
		v, err := strconv.ParseUint(startStr, 10, 64)
		if err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidByteRange, "non-numeric range start")
		}
		r.Start, r.HasStart = v, true
	}
	if endStr != "" {
		v, err := strconv.ParseUint(endStr, 10, 64)
		if err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidByteRange, "non-numeric range end")
		}
		r.End, r.HasEnd = v, true
	}
	if r.HasStart && r.HasEnd && r.End < r.Start {
		return nil, digstoreerr.New(digstoreerr.InvalidByteRange, "range end precedes start")
	}
	return r, nil
}

// String renders u back into canonical form; parse(format(u)) == u.
func (u *Urn) String() string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString(u.StoreId.ToHex())
	if u.HasRoot {
		b.WriteByte(':')
		b.WriteString(u.RootHash.ToHex())
	}
	b.WriteByte('/')
	b.WriteString(u.Path)
	if u.Range != nil {
		b.WriteString("#bytes=")
		if u.Range.HasStart {
			b.WriteString(strconv.FormatUint(u.Range.Start, 10))
		}
		b.WriteByte('-')
		if u.Range.HasEnd {
			b.WriteString(strconv.FormatUint(u.Range.End, 10))
		}
	}
	return b.String()
}
