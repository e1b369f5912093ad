//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package routes exposes the reader service's HTTP API: start and stop
// continuous inventory, inspect the engine state, and fetch the current tag
// snapshot.
package routes

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"
	"github.com/gorilla/mux"

	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/ex10"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/inventory"
)

// Server wires the HTTP handlers to a reader and its tag processor.
type Server struct {
	lc     logger.LoggingClient
	reader *ex10.Reader
	tags   *inventory.TagProcessor

	// baseParams supplies the configured inventory parameters; start
	// requests may override the stop conditions.
	baseParams func() ex10.InventoryParams
}

// NewServer builds the HTTP surface over the given reader.
func NewServer(lc logger.LoggingClient, reader *ex10.Reader, tags *inventory.TagProcessor,
	baseParams func() ex10.InventoryParams) *Server {
	return &Server{lc: lc, reader: reader, tags: tags, baseParams: baseParams}
}

// Router returns the service's route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/ping", s.Ping).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/reader/state", s.ReaderState).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/inventory/snapshot", s.Snapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/inventory/start", s.StartInventory).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/inventory/stop", s.StopInventory).Methods(http.MethodPost)
	return r
}

// Ping responds to liveness probes.
func (s *Server) Ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("pong")); err != nil {
		s.lc.Error(err.Error())
	}
}

// ReaderState reports the continuous inventory engine's diagnostic snapshot.
func (s *Server) ReaderState(w http.ResponseWriter, _ *http.Request) {
	state := s.reader.ContinuousInventoryState()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":          state.State,
		"stopReason":     state.StopReason.String(),
		"roundCount":     state.RoundCount,
		"tagCount":       state.TagCount,
		"target":         state.Target,
		"droppedBuffers": s.reader.DroppedBuffers(),
	})
}

// Snapshot returns every tracked tag.
func (s *Server) Snapshot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tags.Snapshot())
}

// startRequest carries optional overrides for a start call.
type startRequest struct {
	MaxNumberOfRounds *uint32 `json:"maxNumberOfRounds,omitempty"`
	MaxNumberOfTags   *uint32 `json:"maxNumberOfTags,omitempty"`
	MaxDurationUs     *uint32 `json:"maxDurationUs,omitempty"`
}

// StartInventory begins a continuous inventory run with the configured
// parameters, optionally overriding the stop conditions from the request
// body.
func (s *Server) StartInventory(w http.ResponseWriter, req *http.Request) {
	params := s.baseParams()

	body, err := io.ReadAll(io.LimitReader(req.Body, 4096))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) > 0 {
		var overrides startRequest
		if err := json.Unmarshal(body, &overrides); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}
		if overrides.MaxNumberOfRounds != nil {
			params.StopConditions.MaxNumberOfRounds = *overrides.MaxNumberOfRounds
		}
		if overrides.MaxNumberOfTags != nil {
			params.StopConditions.MaxNumberOfTags = *overrides.MaxNumberOfTags
		}
		if overrides.MaxDurationUs != nil {
			params.StopConditions.MaxDurationUs = *overrides.MaxDurationUs
		}
	}

	if err := s.reader.ContinuousInventory(params); err != nil {
		s.lc.Error("Failed to start continuous inventory.", "cause", err.Error())
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// StopInventory requests the engine stop and ramps the transmitter down.
func (s *Server) StopInventory(w http.ResponseWriter, _ *http.Request) {
	if err := s.reader.StopTransmitting(); err != nil {
		s.lc.Error("Failed to stop transmitting.", "cause", err.Error())
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.lc.Error(err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
