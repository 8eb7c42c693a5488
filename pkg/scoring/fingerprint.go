package scoring

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/jihwankim/jitfuzz/pkg/optvector"
)

// Bucket maps a single feature count into its exponentially-growing bucket:
// 0→0, 1→1, 2→2, n→the next power of two ≥ n. Idempotent: Bucket(Bucket(n))
// == Bucket(n), since every bucket value is itself already a power of two
// (or 0/1/2, which are fixed points).
func Bucket(n int64) int64 {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 1
	case n == 2:
		return 2
	}
	p := int64(4)
	for p < n {
		p <<= 1
	}
	return p
}

// BucketVector applies Bucket element-wise, producing the fingerprint
// source vector. Two programs share a corpus slot iff their bucketed
// vectors are element-wise equal.
func BucketVector(v optvector.Vector) optvector.Vector {
	var out optvector.Vector
	for i, c := range v {
		out[i] = Bucket(c)
	}
	return out
}

// Fingerprint renders a bucketed vector as a stable string key, suitable
// for use as a map key identifying a corpus slot.
func Fingerprint(v optvector.Vector) string {
	bucketed := BucketVector(v)
	var sb strings.Builder
	for i, c := range bucketed {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(c, 10))
	}
	return sb.String()
}

// FingerprintHash returns a fast, non-canonical 64-bit hash of a
// fingerprint string, usable for cheap bucket-membership pre-checks before
// falling back to the full string comparison. This is never the bug bucket
// id — that stays SHA-256 per the Bug Bucketizer's contract.
func FingerprintHash(fp string) uint64 {
	return xxhash.Sum64String(fp)
}
