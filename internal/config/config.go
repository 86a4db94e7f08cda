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

// Package config resolves the daemon configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultSleepInterval = 5 * time.Second
	DefaultFetchInterval = 100 // heights per gap-fill chunk
	DefaultChainCount    = 20
	DefaultMaxKeys       = 20
	DefaultMinHeight     = 0
)

// Config carries every knob the ingestion pipelines recognise. Values come
// from the environment; cmd/indexerd may override individual fields from CLI
// flags before wiring the daemons.
type Config struct {
	BaseURL string // SYNC_BASE_URL, e.g. https://api.chainweb.com
	Network string // SYNC_NETWORK, e.g. mainnet01

	DatabaseURL string // DATABASE_URL, Postgres DSN
	Bucket      string // SYNC_OBJECTS_BUCKET, object store bucket with archived headers

	MinHeight     uint64        // SYNC_MIN_HEIGHT, floor height for ingestion
	FetchInterval uint64        // SYNC_FETCH_INTERVAL_IN_BLOCKS, chunk size for gap ranges
	SleepInterval time.Duration // SLEEP_INTERVAL_MS, daemon tick interval

	ChainCount uint32 // number of parallel chains, fixed at 20 on mainnet
	MaxKeys    int32  // archive listing page size

	HookURL    string // NEW_BLOCK_HOOK_URL, optional POST target for new-block notifications
	HookListen string // NEW_BLOCK_HOOK_LISTEN, optional bind address for the inbound hook server
}

// FromEnv builds a Config from the process environment. Missing required
// variables are a startup error; everything else falls back to defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		MinHeight:     DefaultMinHeight,
		FetchInterval: DefaultFetchInterval,
		SleepInterval: DefaultSleepInterval,
		ChainCount:    DefaultChainCount,
		MaxKeys:       DefaultMaxKeys,
	}
	var err error
	if cfg.BaseURL, err = required("SYNC_BASE_URL"); err != nil {
		return nil, err
	}
	if cfg.Network, err = required("SYNC_NETWORK"); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL, err = required("DATABASE_URL"); err != nil {
		return nil, err
	}
	cfg.Bucket = os.Getenv("SYNC_OBJECTS_BUCKET")
	cfg.HookURL = os.Getenv("NEW_BLOCK_HOOK_URL")
	cfg.HookListen = os.Getenv("NEW_BLOCK_HOOK_LISTEN")

	if v := os.Getenv("SYNC_MIN_HEIGHT"); v != "" {
		if cfg.MinHeight, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid SYNC_MIN_HEIGHT %q: %w", v, err)
		}
	}
	if v := os.Getenv("SYNC_FETCH_INTERVAL_IN_BLOCKS"); v != "" {
		if cfg.FetchInterval, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid SYNC_FETCH_INTERVAL_IN_BLOCKS %q: %w", v, err)
		}
		if cfg.FetchInterval == 0 {
			return nil, fmt.Errorf("SYNC_FETCH_INTERVAL_IN_BLOCKS must be positive")
		}
	}
	if v := os.Getenv("SLEEP_INTERVAL_MS"); v != "" {
		ms, perr := strconv.ParseUint(v, 10, 32)
		if perr != nil {
			return nil, fmt.Errorf("invalid SLEEP_INTERVAL_MS %q: %w", v, perr)
		}
		cfg.SleepInterval = time.Duration(ms) * time.Millisecond
	}
	return cfg, nil
}

func required(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", name)
	}
	return v, nil
}
