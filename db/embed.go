// Package db embeds the database schema and seed data.
package db

import _ "embed"

// Schema contains the idempotent DDL for every table.
//
//go:embed migrations/001_schema.sql
var Schema string

// Seed is the development fixture loaded by cmd/seed-db: catalog items,
// couriers and addresses.
//
//go:embed seed/seed.json
var Seed []byte
