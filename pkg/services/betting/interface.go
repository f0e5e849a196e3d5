package betting

import (
	"context"

	"github.com/fadedpez/wagerline/pkg/entities"
)

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_betting
type BettingService interface {
	Place(ctx context.Context, intent *entities.BetIntent) (*entities.BetResult, error)
}
