package signing

import (
	"math/big"
	"time"

	"github.com/pragma-network/pragma-node/internal/apierr"
)

// Publisher is the subset of the publisher record the verifier needs.
type Publisher struct {
	Name          string
	Active        bool
	ActiveKeyHex  string
	AccountAddr   string
}

// PublisherLookup resolves a publisher record by name.
type PublisherLookup func(name string) (Publisher, bool)

// VerifyPublishBatch runs the full C2 verification state machine: publisher
// lookup and activity check, field-element parsing, structured-hash
// computation (v1 first, legacy fallback), and ECDSA verification. It
// returns nil only when the batch is authenticated.
func VerifyPublishBatch(lookup PublisherLookup, domain Domain, publisherName string, entries []HashableEntry, sig Signature) error {
	pub, ok := lookup(publisherName)
	if !ok {
		return apierr.New(apierr.KindUnknownPublisher, "Publisher", "no such publisher: "+publisherName)
	}
	if !pub.Active {
		return apierr.New(apierr.KindInactivePublisher, "Publisher", "publisher is inactive: "+publisherName)
	}

	if _, err := parseFieldElement(pub.ActiveKeyHex); err != nil {
		return apierr.New(apierr.KindInvalidKey, "Publisher", "invalid active_key: "+err.Error())
	}
	if _, err := parseFieldElement(pub.AccountAddr); err != nil {
		return apierr.New(apierr.KindInvalidAddress, "Publisher", "invalid account_address: "+err.Error())
	}

	v1Hash := PublishHashV1(domain, "Publish", entries)
	rHex, sHex := hexOf(sig.R), hexOf(sig.S)

	ok1, err := VerifyHex(pub.ActiveKeyHex, v1Hash, rHex, sHex)
	if err == nil && ok1 {
		return nil
	}

	legacyHash := PublishHashLegacy(domain, "Publish", entries)
	ok2, err2 := VerifyHex(pub.ActiveKeyHex, legacyHash, rHex, sHex)
	if err2 == nil && ok2 {
		return nil
	}

	// Both formats failed to verify. If the signature is at least
	// well-formed but simply doesn't match this key, distinguish
	// Unauthorized (wrong key) from InvalidSignature (malformed) only
	// when we have a parse error to point to; otherwise default to
	// Unauthorized per the "valid only under a wrong key" contract.
	if err != nil && err2 != nil {
		return apierr.New(apierr.KindInvalidSignature, "Publisher", "malformed signature")
	}
	return apierr.New(apierr.KindUnauthorized, "Publisher", "signature does not verify under registered key")
}

func hexOf(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

// parseFieldElement parses a hex-encoded field element, rejecting empty or
// malformed input. Field elements here are modeled as arbitrary-precision
// unsigned integers (the StarkNet field's Go analog in this system).
func parseFieldElement(hexStr string) (*big.Int, error) {
	s := trimHexPrefix(hexStr)
	if s == "" {
		return nil, errEmptyFieldElement
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, errMalformedFieldElement
	}
	return n, nil
}

var (
	errEmptyFieldElement     = simpleError("empty field element")
	errMalformedFieldElement = simpleError("malformed hex field element")
)

type simpleError string

func (e simpleError) Error() string { return string(e) }

// ValidateTimestamp converts a Unix timestamp to a UTC instant, rejecting
// values outside a sane range (the publish endpoint uses this to surface
// InvalidTimestamp).
func ValidateTimestamp(unixSeconds int64) (time.Time, error) {
	if unixSeconds < 0 {
		return time.Time{}, apierr.New(apierr.KindInvalidTimestamp, "Entry", "timestamp is negative")
	}
	t := time.Unix(unixSeconds, 0).UTC()
	if t.Year() > 9999 {
		return time.Time{}, apierr.New(apierr.KindInvalidTimestamp, "Entry", "timestamp out of range")
	}
	return t, nil
}
