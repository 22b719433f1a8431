// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package transferdb is a sqlite journal that stands in for the token ledgers in solo mode.
// Every delivered transfer is appended and its row id is the block index.
package transferdb

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/holiman/uint256"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/xfer"
)

// TransferDB journals transfers.
type TransferDB struct {
	path          string
	db            *sql.DB
	sqliteVersion string

	mu     sync.Mutex
	reject func(xfer.Transfer) error
}

// New opens the journal at path.
func New(path string) (*TransferDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open transfer db")
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(transferTableSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create transfer table")
	}
	s, _, _ := sqlite3.Version()
	return &TransferDB{
		path:          path,
		db:            db,
		sqliteVersion: s,
	}, nil
}

// NewMem create a memory sqlite db.
func NewMem() (*TransferDB, error) {
	return New(":memory:")
}

// Transfer implements xfer.Transferer.
func (db *TransferDB) Transfer(ctx context.Context, t xfer.Transfer) (uint64, error) {
	if t.Amount == nil || t.Amount.IsZero() {
		return 0, errors.New("zero transfer")
	}
	db.mu.Lock()
	reject := db.reject
	db.mu.Unlock()
	if reject != nil {
		if err := reject(t); err != nil {
			return 0, err
		}
	}

	res, err := db.db.ExecContext(ctx,
		"INSERT INTO transfer(token, toAddress, amount, memo, createdAt) VALUES (?, ?, ?, ?, ?)",
		t.Token,
		t.To.Bytes(),
		t.Amount.Bytes(),
		t.Memo,
		time.Now().Unix())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Reject makes Transfer fail with the error fn returns, if any. A nil fn accepts everything.
func (db *TransferDB) Reject(fn func(xfer.Transfer) error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reject = fn
}

// Filter selects journal rows. Zero fields match everything.
type Filter struct {
	Token  string
	To     *burn.Address
	Offset uint64
	Limit  uint64
}

// Query returns the matching transfers in ascending block index.
func (db *TransferDB) Query(ctx context.Context, f Filter) ([]*xfer.Receipt, error) {
	stmt := "SELECT seq, token, toAddress, amount, memo FROM transfer WHERE 1"
	var args []any
	if f.Token != "" {
		stmt += " AND token = ?"
		args = append(args, f.Token)
	}
	if f.To != nil {
		stmt += " AND toAddress = ?"
		args = append(args, f.To.Bytes())
	}
	stmt += " ORDER BY seq ASC"
	if f.Limit > 0 {
		stmt += " LIMIT ?, ?"
		args = append(args, f.Offset, f.Limit)
	}
	return db.query(ctx, stmt, args...)
}

func (db *TransferDB) query(ctx context.Context, stmt string, args ...any) ([]*xfer.Receipt, error) {
	rows, err := db.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*xfer.Receipt
	for rows.Next() {
		var (
			seq    uint64
			token  string
			to     []byte
			amount []byte
			memo   string
		)
		if err := rows.Scan(&seq, &token, &to, &amount, &memo); err != nil {
			return nil, err
		}
		out = append(out, &xfer.Receipt{
			Transfer: xfer.Transfer{
				Token:  token,
				To:     burn.BytesToAddress(to),
				Amount: new(uint256.Int).SetBytes(amount),
				Memo:   memo,
			},
			BlockIndex: seq,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Total returns the sum of all transfers of token.
func (db *TransferDB) Total(ctx context.Context, token string) (*uint256.Int, error) {
	receipts, err := db.Query(ctx, Filter{Token: token})
	if err != nil {
		return nil, err
	}
	sum := burn.Zero()
	for _, r := range receipts {
		sum.Add(sum, r.Amount)
	}
	return sum, nil
}

// Path return db's directory.
func (db *TransferDB) Path() string {
	return db.path
}

// Close close sqlite.
func (db *TransferDB) Close() error {
	return db.db.Close()
}
