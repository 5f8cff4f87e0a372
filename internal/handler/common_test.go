package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-gin-lucky-draw/config"
	"go-gin-lucky-draw/internal/locale"
	"go-gin-lucky-draw/internal/service/mocks"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

const InvalidJSON = `{"invoice": 123,`

func setupTestRouter(t *testing.T) (*gin.Engine, *mocks.LuckyDrawServiceMock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tr, err := locale.NewTranslator()
	require.NoError(t, err)

	svc := mocks.NewLuckyDrawServiceMock(t)
	return NewRouter(config.LoadTestConfig(), svc, tr), svc
}

func createJSONHTTPRequest(method, url string, body interface{}) *http.Request {
	var payload []byte
	switch b := body.(type) {
	case string:
		payload = []byte(b)
	default:
		payload, _ = json.Marshal(b)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
