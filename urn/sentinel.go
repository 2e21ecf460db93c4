package urn

import "crypto/sha256"

// DefaultSentinelLength is used when a URN carries no size hint: it has no
// byte range fragment, or the fragment has no end bound or ends before it
// starts.
const DefaultSentinelLength = 4096

const sentinelDomain = "digstore_sentinel_v1:"

// Sentinel derives a deterministic pseudo-random byte stream for a URN
// that resolves to nothing real. A passive observer asking for a bogus
// store or path gets bytes indistinguishable from real retrieved data,
// rather than an error that would leak "this URN does not exist".
//
// The stream is SHA-256 extended via a counter: block i = SHA-256(domain
// || urn || u32_le(i)); blocks are concatenated and truncated to length.
func Sentinel(u *Urn, length int) []byte {
	if length <= 0 {
		length = DefaultSentinelLength
	}
	urnStr := u.String()
	out := make([]byte, 0, length+sha256.Size)
	var counter uint32
	for len(out) < length {
		h := sha256.New()
		h.Write([]byte(sentinelDomain))
		h.Write([]byte(urnStr))
		h.Write([]byte{byte(counter), byte(counter >> 8), byte(counter >> 16), byte(counter >> 24)})
		out = h.Sum(out)
		counter++
	}
	return out[:length]
}

// SentinelLength resolves the stream length implied by a URN's byte-range
// fragment, falling back to DefaultSentinelLength when absent.
func SentinelLength(u *Urn) int {
	if u.Range == nil {
		return DefaultSentinelLength
	}
	if u.Range.HasEnd {
		end := u.Range.End
		start := uint64(0)
		if u.Range.HasStart {
			start = u.Range.Start
		}
		if end >= start {
			return int(end - start + 1)
		}
	}
	return DefaultSentinelLength
}
