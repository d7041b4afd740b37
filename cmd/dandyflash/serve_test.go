package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T) (*gin.Engine, func()) {
	gin.SetMode(gin.TestMode)
	s, err := openSession(options{transport: "sim", chip: "sst26"})
	assert.Nil(t, err)

	requests := make(chan interface{}, 10)
	done := make(chan struct{})
	go serveRequests(s, requests, done)
	return newRouter(requests, ""), func() {
		close(done)
		s.Close()
	}
}

func do(r http.Handler, method string, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func TestServeInfo(t *testing.T) {
	r, stop := newTestServer(t)
	defer stop()

	w := do(r, "GET", "/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var info deviceInfo
	assert.Nil(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "SST26VF064", info.Part)
	assert.Equal(t, uint64(4096), info.EraseSize)

	w = do(r, "GET", "/regions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var regions []regionInfo
	assert.Nil(t, json.Unmarshal(w.Body.Bytes(), &regions))
	assert.Equal(t, 1, len(regions))
	assert.Equal(t, "SST26", regions[0].Device)
}

func TestServeReplaceAndRead(t *testing.T) {
	r, stop := newTestServer(t)
	defer stop()

	w := do(r, "PUT", "/flash/0x1002", []byte("HELLO"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, "GET", "/flash/0x1000/8", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("\xff\xffHELLO\xff"), w.Body.Bytes())

	w = do(r, "DELETE", "/flash/0x1000/4KiB", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, "GET", "/flash/0x1000/8", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 8), w.Body.Bytes())
}

func TestServeErrors(t *testing.T) {
	r, stop := newTestServer(t)
	defer stop()

	w := do(r, "GET", "/flash/zz/8", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	//past the end of the 8MiB chip
	w = do(r, "GET", "/flash/0x800000/1", nil)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	var reply map[string]interface{}
	assert.Nil(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, float64(-34), reply["errno"])

	w = do(r, "DELETE", "/flash/0x1001/16", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, "PUT", "/flash/0x7FFFFE", []byte("abc"))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
}

func TestServeMetrics(t *testing.T) {
	r, stop := newTestServer(t)
	defer stop()

	do(r, "GET", "/flash/0/16", nil)
	w := do(r, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
