package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/infrastructure/postgres/generated"
	"github.com/iho/satledger/internal/usecase"
)

const (
	pgErrUniqueViolation = "23505"

	journalHashIndex = "ledger_transactions_hash_key"
)

// queriesFor binds the generated queries to an open transaction.
func queriesFor(tx usecase.Transaction) (*generated.Queries, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, fmt.Errorf("postgres repository requires *postgres.Tx, got %T", tx)
	}
	return generated.New(t.PgxTx()), nil
}

// isHashConflict reports a violation of the journal's hash index, as opposed
// to any other unique key.
func isHashConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation && pgErr.ConstraintName == journalHashIndex
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric

	_ = n.Scan(d.String())

	return n
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}

	d := decimal.NewFromBigInt(n.Int, 0)
	if n.Exp != 0 {
		d = d.Shift(n.Exp)
	}

	return d
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return timeToPgTimestamptz(*t)
}

func timestamptzPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func entryParams(leg *domain.LedgerEntry) generated.CreateLedgerEntryParams {
	return generated.CreateLedgerEntryParams{
		ID:                leg.ID,
		TransactionID:     leg.TransactionID,
		AccountPath:       leg.AccountPath,
		WalletID:          leg.WalletID,
		Currency:          string(leg.Currency),
		Amount:            leg.Amount,
		Pending:           leg.Pending,
		Hash:              leg.Hash,
		Type:              string(leg.Type),
		Fee:               leg.Fee,
		FeeUsd:            decimalToNumeric(leg.FeeUsd),
		Usd:               decimalToNumeric(leg.Usd),
		Memo:              leg.Memo,
		MemoFromPayer:     leg.MemoFromPayer,
		FeeBearer:         leg.FeeBearer,
		FeeKnownInAdvance: leg.FeeKnownInAdvance,
		PaymentHash:       leg.PaymentHash,
		Address:           leg.Address,
		TxHash:            leg.TxHash,
		Pubkey:            leg.Pubkey,
		RecipientWalletID: leg.RecipientWalletID,
		Timestamp:         timeToPgTimestamptz(leg.Timestamp),
		SettledAt:         optionalTimestamptz(leg.SettledAt),
	}
}

func rowToEntry(row generated.LedgerEntry) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:                row.ID,
		TransactionID:     row.TransactionID,
		AccountPath:       row.AccountPath,
		WalletID:          row.WalletID,
		Currency:          domain.Currency(row.Currency),
		Amount:            row.Amount,
		Pending:           row.Pending,
		Hash:              row.Hash,
		Fee:               row.Fee,
		FeeUsd:            numericToDecimal(row.FeeUsd),
		Usd:               numericToDecimal(row.Usd),
		Type:              domain.TxType(row.Type),
		Memo:              row.Memo,
		MemoFromPayer:     row.MemoFromPayer,
		FeeBearer:         row.FeeBearer,
		FeeKnownInAdvance: row.FeeKnownInAdvance,
		PaymentHash:       row.PaymentHash,
		Address:           row.Address,
		TxHash:            row.TxHash,
		Pubkey:            row.Pubkey,
		RecipientWalletID: row.RecipientWalletID,
		Timestamp:         row.Timestamp.Time,
		SettledAt:         timestamptzPtr(row.SettledAt),
	}
}

func rowsToLegSet(tx generated.LedgerTransaction, rows []generated.LedgerEntry) *domain.LegSet {
	set := &domain.LegSet{
		TransactionID: tx.ID,
		Hash:          tx.Hash,
		Type:          domain.TxType(tx.Type),
		Pending:       tx.Pending,
		CreatedAt:     tx.CreatedAt.Time,
		SettledAt:     timestamptzPtr(tx.SettledAt),
		Legs:          make([]*domain.LedgerEntry, 0, len(rows)),
	}
	for _, row := range rows {
		set.Legs = append(set.Legs, rowToEntry(row))
	}
	return set
}
