package rounds

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/pkg/entities"
)

// Settler moves money in and out of accounts for a round. The ledger engine
// satisfies it.
//
//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_rounds
type Settler interface {
	Account(ctx context.Context, accountID string) (*entities.Account, error)
	ApplyRef(ctx context.Context, accountID string, delta decimal.Decimal, kind entities.EntryKind, description, referenceID string) (*entities.LedgerEntry, error)
}
