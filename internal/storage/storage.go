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

// Package storage is the Postgres repository backing the indexer. It owns
// the schema and every statement touching it; pipelines interact with the
// model exclusively through this package.
package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// ErrDuplicate marks a unique-constraint conflict. For block inserts this is
// idempotent success, not failure.
var ErrDuplicate = errors.New("storage: duplicate row")

// Querier is the subset of pgx shared by the pool and by transactions, so a
// statement can run in either scope.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps the shared connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  log.Logger
}

// New connects the pool and verifies the server is reachable.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log.New("area", "storage")}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.log.Info("Schema up to date")
	return nil
}

// Begin opens a transaction on the shared pool.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// Close tears down the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// pool-scoped querier for the read paths.
func (s *Store) q() Querier { return s.pool }

// mapUnique folds a Postgres unique violation into ErrDuplicate and passes
// everything else through.
func mapUnique(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
