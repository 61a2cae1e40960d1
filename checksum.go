package nodefs

import (
	"context"
	"crypto/md5"  //nolint:gosec // integrity check, not security
	"crypto/sha1" //nolint:gosec // integrity check, not security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"maps"
	"slices"

	"github.com/cespare/xxhash/v2"
)

var hashers = map[ChecksumAlgorithm]func() hash.Hash{
	ChecksumMD5:    md5.New,  //nolint:gosec
	ChecksumSHA1:   sha1.New, //nolint:gosec
	ChecksumSHA256: sha256.New,
	ChecksumSHA512: sha512.New,
	ChecksumCRC32:  func() hash.Hash { return crc32.NewIEEE() },
	ChecksumXXHash: func() hash.Hash { return xxhash.New() },
}

// ChecksumAlgorithms lists the supported algorithms by name.
func ChecksumAlgorithms() []ChecksumAlgorithm {
	return slices.Sorted(maps.Keys(hashers))
}

// CalculateChecksum reads r to the end and returns the hex-encoded
// checksum.
func CalculateChecksum(r io.Reader, algorithm ChecksumAlgorithm) (string, error) {
	newHash, ok := hashers[algorithm]
	if !ok {
		return "", fmt.Errorf("%w: checksum algorithm %q", ErrNotSupported, algorithm)
	}
	h := newHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Checksum returns the checksum of path on fs. A backend implementing
// CanChecksum is asked first; ErrNotSupported from it falls back to
// hashing the streamed content.
func Checksum(ctx context.Context, fs FileSystem, path string, algorithm ChecksumAlgorithm) (string, error) {
	if cs, ok := fs.(CanChecksum); ok {
		sum, err := cs.Checksum(ctx, path, algorithm)
		if !errors.Is(err, ErrNotSupported) {
			return sum, err
		}
	}

	rc, err := fs.Read(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	sum, err := CalculateChecksum(rc, algorithm)
	if err != nil {
		return "", WrapPathErr("checksum", path, err)
	}
	return sum, nil
}

// VerifyChecksum reports whether the checksum of path equals expected.
// Hex case is ignored.
func VerifyChecksum(ctx context.Context, fs FileSystem, path, expected string, algorithm ChecksumAlgorithm) (bool, error) {
	actual, err := Checksum(ctx, fs, path, algorithm)
	if err != nil {
		return false, err
	}
	want, err := hex.DecodeString(expected)
	if err != nil {
		return false, nil
	}
	return hex.EncodeToString(want) == actual, nil
}
