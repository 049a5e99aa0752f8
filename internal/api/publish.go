package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pragma-network/pragma-node/internal/apierr"
	"github.com/pragma-network/pragma-node/internal/signing"
	"github.com/pragma-network/pragma-node/internal/store"
)

// publishEntry is the wire shape of one entry in a publish batch.
type publishEntry struct {
	PairID               string `json:"pair_id"`
	Source               string `json:"source"`
	Timestamp            int64  `json:"timestamp"`
	Price                string `json:"price"`
	ExpirationTimestamp  *int64 `json:"expiration_timestamp"`
}

type publishSignature struct {
	R string `json:"r"`
	S string `json:"s"`
}

type publishRequest struct {
	Publisher string             `json:"publisher"`
	Entries   []publishEntry     `json:"entries"`
	Signature publishSignature   `json:"signature"`
}

type publishResponse struct {
	NumberEntriesCreated int `json:"number_entries_created"`
}

// handlePublish implements C8: verify the batch signature, classify each
// entry as spot, perp, or dated future, insert idempotently, and fan the
// accepted batch out to the ingest queue.
func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, apierr.New(apierr.KindInvalidRequest, "PublishRequest", "malformed request body: "+err.Error()))
		return
	}

	if len(req.Entries) == 0 {
		c.JSON(http.StatusOK, publishResponse{NumberEntriesCreated: 0})
		return
	}

	hashable := make([]signing.HashableEntry, 0, len(req.Entries))
	parsed := make([]store.NewEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		price, ok := new(big.Rat).SetString(e.Price)
		if !ok {
			writeAPIError(c, apierr.New(apierr.KindInvalidRequest, "Entry", "malformed price: "+e.Price))
			return
		}
		ts, err := signing.ValidateTimestamp(e.Timestamp)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		var expiry *time.Time
		if e.ExpirationTimestamp != nil {
			expTime, err := signing.ValidateTimestamp(*e.ExpirationTimestamp)
			if err != nil {
				writeAPIError(c, err)
				return
			}
			expiry = &expTime
		}

		hashable = append(hashable, signing.HashableEntry{
			PairID:    e.PairID,
			Publisher: req.Publisher,
			Source:    e.Source,
			Timestamp: e.Timestamp,
			Price:     price,
		})
		parsed = append(parsed, store.NewEntry{
			PairID:              e.PairID,
			Publisher:           req.Publisher,
			Source:              e.Source,
			Timestamp:           ts,
			ExpirationTimestamp: expiry,
			Price:               price,
		})
	}

	domain := signing.Domain{Name: "Pragma", Version: "1", ChainID: s.cfg.ChainID}
	sig := signing.Signature{R: decodeHexSigPart(req.Signature.R), S: decodeHexSigPart(req.Signature.S)}

	lookup := func(name string) (signing.Publisher, bool) {
		p, ok, err := s.db.PublisherByName(name)
		if err != nil || !ok {
			return signing.Publisher{}, false
		}
		return signing.Publisher{
			Name:         p.Name,
			Active:       p.Active,
			ActiveKeyHex: p.ActiveKeyHex,
			AccountAddr:  p.AccountAddrHex,
		}, true
	}

	if err := signing.VerifyPublishBatch(lookup, domain, req.Publisher, hashable, sig); err != nil {
		if apiErr, ok := err.(*apierr.Error); ok {
			publishRejected.WithLabelValues(string(apiErr.Kind)).Inc()
		}
		writeAPIError(c, err)
		return
	}

	var spot, future, perp []store.NewEntry
	for _, e := range parsed {
		switch {
		case e.ExpirationTimestamp != nil && e.IsPerpetual():
			perp = append(perp, e)
		case e.ExpirationTimestamp != nil:
			future = append(future, e)
		default:
			spot = append(spot, e)
		}
	}

	total := 0
	if len(spot) > 0 {
		inserted, err := s.db.InsertSpot(spot)
		if err != nil {
			writeAPIError(c, apierr.New(apierr.KindDatabaseUnavailable, "Entry", err.Error()))
			return
		}
		total += len(inserted)
		s.produceAccepted(c, inserted)
	}
	if len(future) > 0 {
		inserted, err := s.db.InsertFuture(future)
		if err != nil {
			writeAPIError(c, apierr.New(apierr.KindDatabaseUnavailable, "Entry", err.Error()))
			return
		}
		total += len(inserted)
		s.produceAccepted(c, inserted)
	}
	if len(perp) > 0 {
		inserted, err := s.db.InsertPerp(perp)
		if err != nil {
			writeAPIError(c, apierr.New(apierr.KindDatabaseUnavailable, "Entry", err.Error()))
			return
		}
		total += len(inserted)
		s.produceAccepted(c, inserted)
	}

	publishAccepted.Add(float64(total))
	c.JSON(http.StatusOK, publishResponse{NumberEntriesCreated: total})
}

// produceAccepted ships each accepted entry to the ingest queue, keyed by
// publisher so per-publisher ordering is preserved. Queue failures are
// logged, not surfaced to the caller: the entry is already durably
// committed to the offchain store.
func (s *Server) produceAccepted(c *gin.Context, entries []store.NewEntry) {
	if s.producer == nil {
		return
	}
	for _, e := range entries {
		value, err := marshalQueueEntry(e)
		if err != nil {
			s.log.Warn("failed to marshal queue entry", "pair_id", e.PairID, "err", err.Error())
			continue
		}
		if err := s.producer.Produce(c.Request.Context(), []byte(e.Publisher), value); err != nil {
			s.log.Warn("failed to produce queue entry", "pair_id", e.PairID, "err", err.Error())
		}
	}
}

// queueEntry is the wire shape shipped to the ingest queue for one
// accepted observation.
type queueEntry struct {
	PairID    string `json:"pair_id"`
	Publisher string `json:"publisher"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
	Price     string `json:"price"`
}

func marshalQueueEntry(e store.NewEntry) ([]byte, error) {
	return json.Marshal(queueEntry{
		PairID:    e.PairID,
		Publisher: e.Publisher,
		Source:    e.Source,
		Timestamp: e.Timestamp.Unix(),
		Price:     e.Price.RatString(),
	})
}

func decodeHexSigPart(hexStr string) []byte {
	s := hexStr
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		var b byte
		for j := 0; j < 2; j++ {
			c := s[i*2+j]
			b <<= 4
			switch {
			case c >= '0' && c <= '9':
				b |= c - '0'
			case c >= 'a' && c <= 'f':
				b |= c - 'a' + 10
			case c >= 'A' && c <= 'F':
				b |= c - 'A' + 10
			}
		}
		out[i] = b
	}
	return out
}
