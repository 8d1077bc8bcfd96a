package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BertoldVdb/max517/dac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func newAPI(t *testing.T, ops ...i2ctest.IO) (*API, *i2ctest.Playback) {
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}
	a, err := New(dac.New(bus, dac.DefaultAddress, nil), "platform:1:0x2c", &sync.Mutex{})
	require.NoError(t, err)
	return a, bus
}

func do(a *API, method string, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func ack(t *testing.T, rec *httptest.ResponseRecorder) bool {
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ctJSON, rec.Header().Get("Content-Type"))

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result.Ack
}

func TestInfo(t *testing.T) {
	a, _ := newAPI(t)

	rec := do(a, "GET", "/info")
	require.Equal(t, http.StatusOK, rec.Code)

	var info Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, Info{Path: "platform:1:0x2c", Address: 0x2C}, info)

	assert.Equal(t, http.StatusMethodNotAllowed, do(a, "POST", "/info").Code)
}

func TestOperations(t *testing.T) {
	a, bus := newAPI(t,
		i2ctest.IO{Addr: 0x2C, W: []byte{0x00, 200}},
		i2ctest.IO{Addr: 0x2C, W: []byte{0x08, 0x10}},
		i2ctest.IO{Addr: 0x2C, W: []byte{0x08}},
		i2ctest.IO{Addr: 0x2C, W: []byte{0x00}},
		i2ctest.IO{Addr: 0x2C, W: []byte{0x10}},
		i2ctest.IO{Addr: 0x2C, W: []byte{0x18}},
		i2ctest.IO{Addr: 0x2C, W: []byte{0x00, 128}},
	)

	assert.True(t, ack(t, do(a, "POST", "/set?value=200")))
	assert.True(t, ack(t, do(a, "POST", "/set?value=0x10&powerdown=1")))
	assert.True(t, ack(t, do(a, "POST", "/powerdown")))
	assert.True(t, ack(t, do(a, "POST", "/powerup")))
	assert.True(t, ack(t, do(a, "POST", "/reset")))
	assert.True(t, ack(t, do(a, "POST", "/reset?powerdown=true")))
	assert.True(t, ack(t, do(a, "POST", "/voltage?mv=2500&vref=5000")))

	require.NoError(t, bus.Close())
}

func TestNotAcknowledged(t *testing.T) {
	a, _ := newAPI(t)

	assert.False(t, ack(t, do(a, "POST", "/powerup")))
}

func TestBadRequests(t *testing.T) {
	a, bus := newAPI(t, i2ctest.IO{Addr: 0x2C, W: []byte{0x00}})

	assert.Equal(t, http.StatusMethodNotAllowed, do(a, "GET", "/set?value=1").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(a, "GET", "/powerup").Code)
	assert.Equal(t, http.StatusBadRequest, do(a, "POST", "/set").Code)
	assert.Equal(t, http.StatusBadRequest, do(a, "POST", "/set?value=256").Code)
	assert.Equal(t, http.StatusBadRequest, do(a, "POST", "/reset?powerdown=maybe").Code)
	assert.Equal(t, http.StatusBadRequest, do(a, "POST", "/voltage?mv=6000&vref=5000").Code)
	assert.Equal(t, http.StatusBadRequest, do(a, "POST", "/voltage?mv=100").Code)

	// Nothing reached the bus.
	assert.True(t, ack(t, do(a, "POST", "/powerup")))
	require.NoError(t, bus.Close())
}

func TestPowerStateIgnoresQuery(t *testing.T) {
	a, bus := newAPI(t,
		i2ctest.IO{Addr: 0x2C, W: []byte{0x08}},
		i2ctest.IO{Addr: 0x2C, W: []byte{0x00}},
	)

	assert.True(t, ack(t, do(a, "POST", "/powerdown?powerdown=x")))
	assert.True(t, ack(t, do(a, "POST", "/powerup?powerdown=0")))
	require.NoError(t, bus.Close())
}

func TestVoltageNotAcknowledged(t *testing.T) {
	a, _ := newAPI(t)

	assert.False(t, ack(t, do(a, "POST", "/voltage?mv=0&vref=5000")))
	assert.Equal(t, http.StatusBadRequest, do(a, "POST", "/voltage?mv=100&vref=0").Code)
}
