// Copyright 2025 The indexer-kadena Authors
// This file is part of indexer-kadena.
//
// indexer-kadena is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// indexer-kadena is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with indexer-kadena. If not, see <http://www.gnu.org/licenses/>.

// Package hook carries the private /new-block notification surface: an
// inbound HTTP server restricted to the internal network, and a best-effort
// outbound notifier feeding a peer from the publication bus.
package hook

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"

	"github.com/0xneves/indexer-kadena/internal/dispatch"
)

// allowedCIDRs limits inbound hook callers to the private subnets the
// indexer peers live on.
var allowedCIDRs = []string{"10.0.2.0/24", "10.0.3.0/24"}

const maxBodyBytes = 1 << 20

// Handler receives dispatch records accepted by the inbound server.
type Handler func(di dispatch.DispatchInfo)

// Server is the inbound /new-block endpoint.
type Server struct {
	handler Handler
	allowed []*net.IPNet
	log     log.Logger

	srv *http.Server
}

// NewServer builds a server delivering accepted notifications to handler.
func NewServer(addr string, handler Handler) *Server {
	var nets []*net.IPNet
	for _, c := range allowedCIDRs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err) // static table
		}
		nets = append(nets, n)
	}

	s := &Server{
		handler: handler,
		allowed: nets,
		log:     log.New("area", "hook"),
	}
	router := httprouter.New()
	router.POST("/new-block", s.newBlock)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()
	s.log.Info("Hook server listening", "addr", s.srv.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		<-errc
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

func (s *Server) newBlock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.allowedPeer(r.RemoteAddr) {
		s.log.Warn("Rejected hook caller outside allow-list", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var di dispatch.DispatchInfo
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&di); err != nil || di.Hash == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	s.log.Debug("Accepted block notification", "hash", di.Hash, "chain", di.ChainID, "height", di.Height)
	if s.handler != nil {
		s.handler(di)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) allowedPeer(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range s.allowed {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
