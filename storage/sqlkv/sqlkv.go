// Copyright 2016 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlkv implements storage.KVEngine over a single ordered SQL
// table, for deployments that already operate a MySQL fleet and would
// rather not stand up a dedicated embedded-KV process.
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Registers the "mysql" sql.DB driver.
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS HTreeKV (
		K VARBINARY(1024) NOT NULL,
		V BLOB NOT NULL,
		PRIMARY KEY(K)
	)`

	getSQL     = `SELECT V FROM HTreeKV WHERE K = ?`
	setSQL     = `INSERT INTO HTreeKV(K, V) VALUES (?, ?) ON DUPLICATE KEY UPDATE V = VALUES(V)`
	deleteSQL  = `DELETE FROM HTreeKV WHERE K = ?`
	iterateSQL = `SELECT K, V FROM HTreeKV WHERE K >= ? AND K < ? ORDER BY K ASC`
)

// Engine implements storage.KVEngine over a MySQL table of (K,V) rows kept
// ordered by K's byte comparison, which MySQL's VARBINARY collation
// provides natively.
type Engine struct {
	db *sql.DB
}

// Open connects to a MySQL instance using dataSourceName (as accepted by
// github.com/go-sql-driver/mysql) and ensures the backing table exists.
func Open(ctx context.Context, dataSourceName string) (*Engine, error) {
	db, err := sql.Open("mysql", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("sqlkv: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlkv: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlkv: create table: %w", err)
	}
	glog.Infof("sqlkv: connected and schema ensured")
	return &Engine{db: db}, nil
}

// Close releases the underlying connection pool.
func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	var v []byte
	err := e.db.QueryRowContext(ctx, getSQL, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlkv: get: %w", err)
	}
	return v, true, nil
}

func (e *Engine) Set(ctx context.Context, key, value []byte) error {
	if _, err := e.db.ExecContext(ctx, setSQL, key, value); err != nil {
		return fmt.Errorf("sqlkv: set: %w", err)
	}
	return nil
}

func (e *Engine) Delete(ctx context.Context, key []byte) error {
	if _, err := e.db.ExecContext(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("sqlkv: delete: %w", err)
	}
	return nil
}

func (e *Engine) Iterate(ctx context.Context, lo, hi []byte, fn func(key, value []byte) (bool, error)) error {
	rows, err := e.db.QueryContext(ctx, iterateSQL, lo, hi)
	if err != nil {
		return fmt.Errorf("sqlkv: iterate: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("sqlkv: iterate scan: %w", err)
		}
		ok, err := fn(k, v)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return rows.Err()
}
