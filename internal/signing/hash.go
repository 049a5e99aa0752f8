// Package signing implements the domain-separated structured hash used to
// authenticate publisher batches and StarkEx price payloads, plus ECDSA
// sign/verify over secp256k1.
package signing

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"
)

// Hash is a fixed-size structured-hash output.
type Hash [32]byte

// Bytes returns the raw hash bytes.
func (h Hash) Bytes() []byte { return h[:] }

// Big returns the hash interpreted as a big-endian unsigned integer.
func (h Hash) Big() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// leafHash produces a domain-separated hash of a single typed field. The
// typeTag prevents cross-type collisions (e.g. a string and a uint64 that
// happen to share a byte encoding).
func leafHash(typeTag string, data []byte) Hash {
	h := sha256.New()
	h.Write([]byte(typeTag))
	h.Write([]byte{0})
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// StringHash hashes a UTF-8 string leaf.
func StringHash(s string) Hash {
	return leafHash("string", []byte(s))
}

// Uint64Hash hashes a uint64 leaf.
func Uint64Hash(v uint64) Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return leafHash("u64", buf[:])
}

// DecimalHash hashes an exact decimal price leaf, encoded as the RatString
// of its big.Rat ("a/b" in lowest terms, or just "a" for an integer) so
// that equal values always hash identically.
func DecimalHash(price *big.Rat) Hash {
	return leafHash("decimal", []byte(price.RatString()))
}

// BytesHash hashes an arbitrary byte-string leaf (e.g. a field-element or
// oracle-name encoding).
func BytesHash(b []byte) Hash {
	return leafHash("bytes", b)
}

// PairHash combines two structured-hash nodes commutatively: the operands
// are sorted numerically so that H(a, b) == H(b, a) for any a, b. This is
// the sort invariant the whole structured-hash scheme depends on — every
// pairwise combination step, and only the leaf-combination step, applies
// it (see the design notes on sort-rule scope).
func PairHash(a, b Hash) Hash {
	aBig, bBig := a.Big(), b.Big()
	lo, hi := a, b
	if aBig.Cmp(bBig) > 0 {
		lo, hi = b, a
	}
	h := sha256.New()
	h.Write([]byte("pair"))
	h.Write([]byte{0})
	h.Write(lo[:])
	h.Write(hi[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// FoldPairwise combines a non-empty list of leaf hashes into a single
// structured hash using a commutative pairwise fold. The fold order over
// more than two elements does not need to be commutative overall (only
// each individual combination step is), so a left fold is sufficient and
// deterministic.
func FoldPairwise(hashes []Hash) Hash {
	if len(hashes) == 0 {
		return leafHash("empty", nil)
	}
	acc := hashes[0]
	for _, h := range hashes[1:] {
		acc = PairHash(acc, h)
	}
	return acc
}

// Domain is the domain-separation tuple mixed into every publish hash.
type Domain struct {
	Name    string
	Version string
	ChainID string
}

func (d Domain) hash() Hash {
	return FoldPairwise([]Hash{
		StringHash(d.Name),
		StringHash(d.Version),
		StringHash(d.ChainID),
	})
}

// HashableEntry is the minimal set of fields a publish entry contributes
// to the structured hash, shared by both the v1 and legacy encodings.
type HashableEntry struct {
	PairID    string
	Publisher string
	Source    string
	Timestamp int64
	Price     *big.Rat
}

func (e HashableEntry) hashV1() Hash {
	return FoldPairwise([]Hash{
		StringHash(e.PairID),
		StringHash(e.Publisher),
		StringHash(e.Source),
		Uint64Hash(uint64(e.Timestamp)),
		DecimalHash(e.Price),
	})
}

// hashLegacy mirrors the v1 encoding but omits the source field, matching
// the older wire format some publishers still emit.
func (e HashableEntry) hashLegacy() Hash {
	return FoldPairwise([]Hash{
		StringHash(e.PairID),
		StringHash(e.Publisher),
		Uint64Hash(uint64(e.Timestamp)),
		DecimalHash(e.Price),
	})
}

// PublishHashV1 computes the structured hash of a publisher batch under
// the current (v1) message format.
func PublishHashV1(domain Domain, action string, entries []HashableEntry) Hash {
	leaves := make([]Hash, 0, len(entries)+2)
	leaves = append(leaves, domain.hash(), StringHash(action))
	for _, e := range entries {
		leaves = append(leaves, e.hashV1())
	}
	return FoldPairwise(leaves)
}

// PublishHashLegacy computes the structured hash under the legacy format.
func PublishHashLegacy(domain Domain, action string, entries []HashableEntry) Hash {
	leaves := make([]Hash, 0, len(entries)+2)
	leaves = append(leaves, domain.hash(), StringHash(action))
	for _, e := range entries {
		leaves = append(leaves, e.hashLegacy())
	}
	return FoldPairwise(leaves)
}

// StarkExPayloadHash computes the structured hash of a single StarkEx
// oracle-price tuple: 5-byte oracle name, pair id, timestamp, price.
func StarkExPayloadHash(oracleName string, pairID string, timestamp int64, price *big.Rat) Hash {
	return FoldPairwise([]Hash{
		BytesHash([]byte(oracleName)),
		StringHash(pairID),
		Uint64Hash(uint64(timestamp)),
		DecimalHash(price),
	})
}
