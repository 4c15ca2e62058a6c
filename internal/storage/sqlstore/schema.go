package sqlstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Timestamps are always written in UTC. {{ts}} expands to the dialect's
// timestamp type.
var schemaStmts = []string{
	`
CREATE TABLE IF NOT EXISTS devices (
  device_id TEXT PRIMARY KEY,
  device_name TEXT NOT NULL,
  status TEXT NOT NULL,
  support_id TEXT NOT NULL DEFAULT '',
  agent_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL DEFAULT '',
  parcel_number TEXT NOT NULL DEFAULT '',
  inventory_flag BOOLEAN NOT NULL DEFAULT FALSE,
  version BIGINT NOT NULL DEFAULT 1,
  created_at {{ts}} NOT NULL,
  updated_at {{ts}} NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status)`,
	`
CREATE TABLE IF NOT EXISTS accessories (
  accessory_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  specs TEXT NOT NULL DEFAULT '{}',
  quantity TEXT NOT NULL DEFAULT '0',
  status TEXT NOT NULL DEFAULT 'active',
  version BIGINT NOT NULL DEFAULT 1,
  created_at {{ts}} NOT NULL,
  updated_at {{ts}} NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS parcels (
  parcel_number TEXT PRIMARY KEY,
  pickup_location TEXT NOT NULL,
  destination TEXT NOT NULL,
  agent_id TEXT NOT NULL DEFAULT '',
  support_id TEXT NOT NULL DEFAULT '',
  devices TEXT NOT NULL DEFAULT '[]',
  accessories TEXT NOT NULL DEFAULT '[]',
  sender TEXT NOT NULL DEFAULT '',
  receiver TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  version BIGINT NOT NULL DEFAULT 1,
  created_at {{ts}} NOT NULL,
  updated_at {{ts}} NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_parcels_agent_status ON parcels(agent_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_parcels_support_id ON parcels(support_id)`,
	`CREATE INDEX IF NOT EXISTS idx_parcels_status ON parcels(status)`,
	`
CREATE TABLE IF NOT EXISTS tracking_records (
  parcel_number TEXT PRIMARY KEY,
  tracking_history TEXT NOT NULL DEFAULT '[]',
  expected_delivery {{ts}} NOT NULL,
  created_at {{ts}} NOT NULL,
  updated_at {{ts}} NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS tickets (
  ticket_number TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  devices_requested BIGINT NOT NULL DEFAULT 0,
  accessories TEXT NOT NULL DEFAULT '[]',
  status TEXT NOT NULL,
  support_id TEXT NOT NULL DEFAULT '',
  chat TEXT NOT NULL DEFAULT '[]',
  version BIGINT NOT NULL DEFAULT 1,
  created_at {{ts}} NOT NULL,
  updated_at {{ts}} NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status)`,
	`
CREATE TABLE IF NOT EXISTS parcel_requests (
  request_key TEXT PRIMARY KEY,
  parcel_number TEXT NOT NULL,
  created_at {{ts}} NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS support_users (
  support_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  phone TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  created_at {{ts}} NOT NULL
)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if s.dialect == DialectSQLite {
		ts = "TIMESTAMP"
	}

	for _, q := range schemaStmts {
		if _, err := s.db.ExecContext(ctx, strings.ReplaceAll(q, "{{ts}}", ts)); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
