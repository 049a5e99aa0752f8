package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pragma-network/pragma-node/internal/apierr"
	"github.com/pragma-network/pragma-node/internal/pairid"
	"github.com/pragma-network/pragma-node/internal/store"
)

type componentResponse struct {
	Publisher string `json:"publisher"`
	Source    string `json:"source"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

type medianResponse struct {
	PairID               string `json:"pair_id"`
	Timestamp            int64  `json:"timestamp"`
	NumSourcesAggregated int    `json:"num_sources_aggregated"`
	Price                string `json:"price"`
}

// handleGetMedian implements the GET half of C4/C5: a single pair's
// current median, spot by default or perp mark when ?instrument=perp.
func (s *Server) handleGetMedian(c *gin.Context) {
	base := strings.ToUpper(c.Param("base"))
	quote := strings.ToUpper(c.Param("quote"))
	if !pairid.Valid(base, quote) {
		writeAPIError(c, apierr.New(apierr.KindUnknownPairID, "Entry", "malformed pair"))
		return
	}
	pairID := pairid.PairID(base, quote)

	kind := store.KindSpot
	if c.Query("instrument") == "perp" {
		kind = store.KindPerp
	}

	var results []store.MedianEntryWithComponents
	var err error
	if quote != "USD" && kind == store.KindPerp {
		results, err = s.indexPricer.Mark(c.Request.Context(), []string{pairID})
	} else {
		results, err = s.indexPricer.Index(c.Request.Context(), []string{pairID}, kind)
	}
	if err != nil {
		writeAPIError(c, apierr.New(apierr.KindDatabaseUnavailable, "Entry", err.Error()))
		return
	}
	if len(results) == 0 {
		writeAPIError(c, apierr.New(apierr.KindUnknownPairID, "Entry", "no observations for "+pairID))
		return
	}

	c.JSON(http.StatusOK, toMedianResponse(results[0], s.decimals.PairDecimals(pairID)))
}

func toMedianResponse(e store.MedianEntryWithComponents, decimals int) medianResponse {
	return medianResponse{
		PairID:               e.PairID,
		Timestamp:            e.MedianTimestamp.Unix(),
		NumSourcesAggregated: len(e.Components),
		Price:                pairid.FormatHex(e.MedianPrice, decimals),
	}
}
