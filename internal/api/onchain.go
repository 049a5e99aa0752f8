package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pragma-network/pragma-node/internal/apierr"
	"github.com/pragma-network/pragma-node/internal/pairid"
	"github.com/pragma-network/pragma-node/internal/store"
)

type onchainResponse struct {
	PairID               string              `json:"pair_id"`
	LastUpdatedTimestamp int64               `json:"last_updated_timestamp"`
	Price                string              `json:"price"`
	Decimals             int                 `json:"decimals"`
	NbSourcesAggregated  int                 `json:"nb_sources_aggregated"`
	AssetType            string              `json:"asset_type"`
	Components           []componentResponse `json:"components"`
}

// handleGetOnchain implements C6: resolve an on-chain price, direct or
// pivot-routed, at the requested aggregation mode and timestamp.
func (s *Server) handleGetOnchain(c *gin.Context) {
	base := strings.ToUpper(c.Param("base"))
	quote := strings.ToUpper(c.Param("quote"))
	if !pairid.Valid(base, quote) {
		writeAPIError(c, apierr.New(apierr.KindUnknownPairID, "OnchainEntry", "malformed pair"))
		return
	}
	pairID := pairid.PairID(base, quote)

	mode := store.AggregationMedian
	switch c.Query("aggregation") {
	case "mean":
		mode = store.AggregationMean
	case "twap":
		mode = store.AggregationTWAP
	}
	interval := c.DefaultQuery("interval", "1min")
	routingEnabled := c.Query("routing") == "true"

	t := time.Now()
	if ts := c.Query("timestamp"); ts != "" {
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			writeAPIError(c, apierr.New(apierr.KindInvalidTimestamp, "OnchainEntry", "malformed timestamp"))
			return
		}
		t = time.Unix(unix, 0).UTC()
		if t.After(time.Now()) {
			writeAPIError(c, apierr.New(apierr.KindInvalidTimestamp, "OnchainEntry", "timestamp is in the future"))
			return
		}
	}

	result, err := s.resolver.Resolve(pairID, t, mode, interval, routingEnabled)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	components := make([]componentResponse, 0, len(result.Components))
	for _, comp := range result.Components {
		components = append(components, componentResponse{
			Publisher: comp.Publisher,
			Source:    comp.Source,
			Price:     pairid.FormatDecimalString(comp.Price, result.Decimals),
			Timestamp: comp.Timestamp.Unix(),
		})
	}

	c.JSON(http.StatusOK, onchainResponse{
		PairID:               pairID,
		LastUpdatedTimestamp: result.LastUpdated.Unix(),
		Price:                pairid.FormatDecimalString(result.Price, result.Decimals),
		Decimals:             result.Decimals,
		NbSourcesAggregated:  len(result.Components),
		AssetType:            "Crypto",
		Components:           components,
	})
}
