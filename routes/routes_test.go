//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/ex10"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/ex10/ex10sim"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/inventory"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/regulatory"
)

func getTestingLogger() logger.LoggingClient {
	if testing.Verbose() {
		return logger.NewClient("test", "DEBUG")
	}

	return logger.NewMockClient()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	region, err := regulatory.Lookup("ETSI_LOWER")
	require.NoError(t, err)

	var sim *ex10sim.Simulator
	active, err := regulatory.NewActiveRegion(region,
		func() uint32 { return sim.GetDeviceTime() / 1000 }, 1)
	require.NoError(t, err)

	sim = ex10sim.New(getTestingLogger(), active, nil)
	reader := ex10.NewReader(getTestingLogger(), sim.Device())
	sim.SetDispatcher(ex10.NewDispatcher(reader), reader.AllocateFifoBuffer)

	params := func() ex10.InventoryParams {
		return ex10.InventoryParams{
			Antenna:        1,
			RfMode:         13,
			TxPowerCdbm:    3000,
			Config:         ex10.InventoryRoundControl{InitialQ: 4, Session: 1},
			StopConditions: ex10.StopConditions{MaxNumberOfRounds: 10},
		}
	}
	return NewServer(getTestingLogger(), reader, inventory.NewTagProcessor(getTestingLogger()), params)
}

func TestPing(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestReaderStateStartsIdle(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reader/state", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "Idle", state["state"])
	assert.Equal(t, "None", state["stopReason"])
}

func TestSnapshotEmpty(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/snapshot", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestStartStopInventory(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/start",
		strings.NewReader(`{"maxNumberOfRounds": 3}`))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reader/state", nil)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "Ongoing", state["state"])

	req = httptest.NewRequest(http.MethodPost, "/api/v1/inventory/stop", nil)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/start",
		strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
