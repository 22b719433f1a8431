// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transferdb

const transferTableSchema = `CREATE TABLE IF NOT EXISTS transfer (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	token TEXT NOT NULL,
	toAddress BLOB(20) NOT NULL,
	amount BLOB(32) NOT NULL,
	memo TEXT NOT NULL,
	createdAt INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS transfer_i_to ON transfer(toAddress, token);
`
