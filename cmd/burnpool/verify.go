// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/cheggaaa/pb.v1"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/kv"
	"github.com/vechain/burnpool/ledger"
)

func verifyAction(ctx *cli.Context) error {
	initLogger(ctx)
	cfg := loadConfig(ctx)

	mainDB := openMainDB(ctx, makeDataDir(cfg))
	defer mainDB.Close()

	return verifyLedger(mainDB)
}

// verifyLedger scans the ledger kept in db with a progress bar.
func verifyLedger(db kv.Store) error {
	l, err := ledger.New(db)
	if err != nil {
		return err
	}
	totals, err := l.Totals(burn.Address{})
	if err != nil {
		return err
	}

	fmt.Println(">> Verifying ledger <<")
	bar := pb.New(totals.Positions + totals.Kamikazes).
		SetMaxWidth(90).
		Start()
	defer func() { bar.NotPrint = true }()

	if err := l.Verify(func() { bar.Increment() }); err != nil {
		return errors.WithMessage(err, "verify ledger")
	}
	bar.Finish()
	fmt.Printf("ledger ok: round %v, %v positions, %v kamikazes\n", totals.Round, totals.Positions, totals.Kamikazes)
	return nil
}
