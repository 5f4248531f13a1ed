package handlers

import (
	"perpcontrol/internal/executor"
	"perpcontrol/internal/reconcile"
	"perpcontrol/internal/sizing"
	"perpcontrol/internal/store"
	"perpcontrol/pkg/venue"
)

// Package-level collaborators, wired once at startup.
var (
	pipeline   *executor.Service
	st         *store.Store
	reconciler *reconcile.Reconciler
	markets    *sizing.MarketRegistry
	keys       *venue.KeyManager
)

// Setup wires the handler package's collaborators. Must be called before the
// router starts serving.
func Setup(svc *executor.Service, s *store.Store, r *reconcile.Reconciler, m *sizing.MarketRegistry, k *venue.KeyManager) {
	pipeline = svc
	st = s
	reconciler = r
	markets = m
	keys = k
}
