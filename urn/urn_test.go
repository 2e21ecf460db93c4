package urn

import (
	"strings"
	"testing"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/stretchr/testify/require"
)

func sampleStoreHex() string {
	return types.Of([]byte("store-one")).ToHex()
}

func TestParseMinimalUrn(t *testing.T) {
	s := "urn:dig:chia:" + sampleStoreHex() + "/a/b/c.txt"
	u, err := Parse(s)
	require.NoError(t, err)
	require.Equal(t, "a/b/c.txt", u.Path)
	require.False(t, u.HasRoot)
	require.Nil(t, u.Range)
}

func TestParseWithRootAndRange(t *testing.T) {
	root := types.Of([]byte("root-one")).ToHex()
	s := "urn:dig:chia:" + sampleStoreHex() + ":" + root + "/file.bin#bytes=10-20"
	u, err := Parse(s)
	require.NoError(t, err)
	require.True(t, u.HasRoot)
	require.NotNil(t, u.Range)
	require.True(t, u.Range.HasStart)
	require.True(t, u.Range.HasEnd)
	require.Equal(t, uint64(10), u.Range.Start)
	require.Equal(t, uint64(20), u.Range.End)
}

func TestParseOpenEndedRange(t *testing.T) {
	s := "urn:dig:chia:" + sampleStoreHex() + "/file.bin#bytes=100-"
	u, err := Parse(s)
	require.NoError(t, err)
	require.True(t, u.Range.HasStart)
	require.False(t, u.Range.HasEnd)
}

func TestParseRejectsMissingScheme(t *testing.T) {
	_, err := Parse("not-a-urn/file.txt")
	require.Error(t, err)
	kind, ok := digstoreerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, digstoreerr.InvalidUrn, kind)
}

func TestParseRejectsMissingPath(t *testing.T) {
	_, err := Parse("urn:dig:chia:" + sampleStoreHex())
	require.Error(t, err)
}

func TestParseRejectsDotDotSegment(t *testing.T) {
	_, err := Parse("urn:dig:chia:" + sampleStoreHex() + "/../etc/passwd")
	require.Error(t, err)
}

func TestParseRejectsBadRange(t *testing.T) {
	_, err := Parse("urn:dig:chia:" + sampleStoreHex() + "/f.txt#bytes=20-10")
	require.Error(t, err)
	kind, _ := digstoreerr.KindOf(err)
	require.Equal(t, digstoreerr.InvalidByteRange, kind)
}

func TestStringRoundTrip(t *testing.T) {
	root := types.Of([]byte("root-one")).ToHex()
	s := "urn:dig:chia:" + sampleStoreHex() + ":" + root + "/a/b.txt#bytes=1-9"
	u, err := Parse(s)
	require.NoError(t, err)
	require.Equal(t, s, u.String())
}

func TestTransformDeterministic(t *testing.T) {
	u, err := Parse("urn:dig:chia:" + sampleStoreHex() + "/f.txt")
	require.NoError(t, err)
	key := PublicKey{Bytes: []byte(strings.Repeat("k", 32)), Algorithm: "bls12-381"}

	a := Transform(u, key)
	b := Transform(u, key)
	require.Equal(t, a, b)
}

func TestTransformDiffersByUrn(t *testing.T) {
	key := PublicKey{Bytes: []byte(strings.Repeat("k", 32)), Algorithm: "bls12-381"}
	u1, _ := Parse("urn:dig:chia:" + sampleStoreHex() + "/f1.txt")
	u2, _ := Parse("urn:dig:chia:" + sampleStoreHex() + "/f2.txt")
	require.NotEqual(t, Transform(u1, key), Transform(u2, key))
}

func TestTransformDiffersByKey(t *testing.T) {
	u, _ := Parse("urn:dig:chia:" + sampleStoreHex() + "/f.txt")
	k1 := PublicKey{Bytes: []byte(strings.Repeat("a", 32)), Algorithm: "bls12-381"}
	k2 := PublicKey{Bytes: []byte(strings.Repeat("b", 32)), Algorithm: "bls12-381"}
	require.NotEqual(t, Transform(u, k1), Transform(u, k2))
}

func TestEncryptDecryptChunkRoundTrip(t *testing.T) {
	u, _ := Parse("urn:dig:chia:" + sampleStoreHex() + "/f.txt")
	data := []byte("hello chunk bytes")

	enc, err := EncryptChunk(data, u)
	require.NoError(t, err)
	require.NotEqual(t, data, enc)

	dec, err := DecryptChunk(enc, u)
	require.NoError(t, err)
	require.Equal(t, data, dec)
}

func TestEncryptTwiceDiffers(t *testing.T) {
	u, _ := Parse("urn:dig:chia:" + sampleStoreHex() + "/f.txt")
	data := []byte("same plaintext")
	e1, _ := EncryptChunk(data, u)
	e2, _ := EncryptChunk(data, u)
	require.NotEqual(t, e1, e2)
}

func TestDecryptWithWrongUrnFails(t *testing.T) {
	u1, _ := Parse("urn:dig:chia:" + sampleStoreHex() + "/f1.txt")
	u2, _ := Parse("urn:dig:chia:" + sampleStoreHex() + "/f2.txt")
	enc, err := EncryptChunk([]byte("secret"), u1)
	require.NoError(t, err)

	_, err = DecryptChunk(enc, u2)
	require.Error(t, err)
}

func TestSentinelDeterministicAndDistinct(t *testing.T) {
	u1, _ := Parse("urn:dig:chia:" + strings.Repeat("0", 64) + "/anything.txt")
	u2, _ := Parse("urn:dig:chia:" + strings.Repeat("0", 64) + "/other.txt")

	a := Sentinel(u1, SentinelLength(u1))
	b := Sentinel(u1, SentinelLength(u1))
	c := Sentinel(u2, SentinelLength(u2))

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestSentinelLengthFromRange(t *testing.T) {
	u, _ := Parse("urn:dig:chia:" + sampleStoreHex() + "/f.txt#bytes=0-15")
	require.Equal(t, 16, SentinelLength(u))
}
