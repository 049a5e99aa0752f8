package signing

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairHashCommutative(t *testing.T) {
	a := StringHash("alpha")
	b := StringHash("beta")
	assert.Equal(t, PairHash(a, b), PairHash(b, a))
}

func TestFoldPairwiseDeterministic(t *testing.T) {
	hashes := []Hash{StringHash("one"), StringHash("two"), StringHash("three")}
	h1 := FoldPairwise(hashes)
	h2 := FoldPairwise(hashes)
	assert.Equal(t, h1, h2)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	signer, err := NewSignerFromHex("0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)

	h := StarkExPayloadHash("PRGM", "BTC/USD", 1700000000, big.NewRat(650000, 1))
	sig := signer.Sign(h)

	ok, err := VerifyHex(signer.PublicKeyHex(), h, hexOf(sig.R), hexOf(sig.S))
	require.NoError(t, err)
	assert.True(t, ok)

	wrongHash := StarkExPayloadHash("PRGM", "ETH/USD", 1700000000, big.NewRat(650000, 1))
	ok, err = VerifyHex(signer.PublicKeyHex(), wrongHash, hexOf(sig.R), hexOf(sig.S))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPublishBatchUnknownPublisher(t *testing.T) {
	lookup := func(name string) (Publisher, bool) { return Publisher{}, false }
	err := VerifyPublishBatch(lookup, Domain{Name: "Pragma", Version: "1", ChainID: "1"}, "ghost", nil, Signature{})
	require.Error(t, err)
}

func TestVerifyPublishBatchInactive(t *testing.T) {
	lookup := func(name string) (Publisher, bool) {
		return Publisher{Name: name, Active: false, ActiveKeyHex: "02" + "00"}, true
	}
	err := VerifyPublishBatch(lookup, Domain{Name: "Pragma", Version: "1", ChainID: "1"}, "binance", nil, Signature{})
	require.Error(t, err)
}
