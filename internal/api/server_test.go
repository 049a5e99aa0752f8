package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/pragma-network/pragma-node/config"
	"github.com/pragma-network/pragma-node/internal/apierr"
	"github.com/pragma-network/pragma-node/pkg/logger"
)

func testServer() *Server {
	return NewServer(config.APIConfig{
		Host:         "127.0.0.1",
		Port:         0,
		PublishRate:  50,
		PublishBurst: 100,
		ChainID:      "SN_MAIN",
	}, config.WSConfig{}, Deps{
		Log: logger.NewLogger("api_test"),
	})
}

func TestLivenessEndpoint(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/node", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Server is running!", w.Body.String())
}

func TestWriteAPIErrorFallsBackToGenericForPlainErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeAPIError(c, assertPlainErr{})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWriteAPIErrorUsesTaxonomyStatus(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeAPIError(c, apierr.New(apierr.KindUnknownPairID, "Entry", "no such pair"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type assertPlainErr struct{}

func (assertPlainErr) Error() string { return "boom" }
