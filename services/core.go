package services

import (
	"cultivation-core/config"
	"cultivation-core/content"
	"cultivation-core/store"
)

// Core wires the four core components and the supporting services.
type Core struct {
	Catalog      *content.Catalog
	Ledger       *LedgerService
	Effects      *EffectService
	Breakthrough *BreakthroughService
	Sweeper      *OverdueSweeper
	Players      *PlayerService
	Gate         *Gate
}

// NewCore builds the services. A nil clock or roller uses the real ones.
func NewCore(st *store.Store, cat *content.Catalog, bank config.Bank, clock Clock, roller Roller) *Core {
	if clock == nil {
		clock = RealClock{}
	}
	if roller == nil {
		roller = RandRoller{}
	}
	ledger := NewLedgerService(st, cat, clock, bank)
	sweeper := NewOverdueSweeper(st, clock)
	return &Core{
		Catalog:      cat,
		Ledger:       ledger,
		Effects:      NewEffectService(st, cat, clock),
		Breakthrough: NewBreakthroughService(st, cat, clock, roller, ledger),
		Sweeper:      sweeper,
		Players:      NewPlayerService(st, cat, clock, roller),
		Gate:         NewGate(st, cat, sweeper),
	}
}
