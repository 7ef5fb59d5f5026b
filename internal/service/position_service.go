package service

import (
	"context"
	"errors"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/chain"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/lending"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/marketmath"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
)

// Ошибки сервиса позиций
var (
	ErrBadAddress = errors.New("invalid ethereum address")
)

// PositionService читает позиции из цепочки и проецирует черновые изменения
//
// Снимок рынка доначисляется процентами на текущий момент перед любым
// вычислением: значения из цепочки могут быть устаревшими с последнего
// accrual. Проекция чисто вычислительная и цепочку не трогает.
type PositionService struct {
	reader     chain.Reader
	marketRepo MarketRepositoryInterface
	log        *utils.Logger
}

// NewPositionService создает новый экземпляр сервиса позиций
func NewPositionService(reader chain.Reader, marketRepo MarketRepositoryInterface, log *utils.Logger) *PositionService {
	if log == nil {
		log = utils.L()
	}
	return &PositionService{
		reader:     reader,
		marketRepo: marketRepo,
		log:        log.WithComponent("position"),
	}
}

// snapshot читает рынок и позицию и доначисляет проценты на сейчас
func (s *PositionService) snapshot(ctx context.Context, user common.Address, params models.MarketParams) (*models.MarketState, *models.Position, error) {
	market, err := s.reader.Market(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	position, err := s.reader.Position(ctx, user, params.ID())
	if err != nil {
		return nil, nil, err
	}
	return marketmath.AccrueInterest(market, time.Now().Unix()), position, nil
}

// GetPosition возвращает позицию пользователя с производными полями
func (s *PositionService) GetPosition(ctx context.Context, userAddr, marketKey string) (*models.AccrualPosition, error) {
	if !common.IsHexAddress(userAddr) {
		return nil, ErrBadAddress
	}
	params, err := s.marketParams(marketKey)
	if err != nil {
		return nil, err
	}
	market, position, err := s.snapshot(ctx, common.HexToAddress(userAddr), params)
	if err != nil {
		return nil, err
	}
	return marketmath.Derive(market, position), nil
}

// ProjectRequest - черновые изменения позиции, введённые пользователем.
// Суммы в десятичной записи, в человеко-читаемых единицах токена.
type ProjectRequest struct {
	User      string `json:"user"`
	MarketKey string `json:"market_key"`

	// Знаковое изменение долга: "+количество" занять, "-количество" погасить
	DiffBorrow string `json:"diff_borrow,omitempty"`
	// Знаковое изменение залога
	DiffCollateral string `json:"diff_collateral,omitempty"`

	LoanDecimals       int `json:"loan_decimals"`
	CollateralDecimals int `json:"collateral_decimals"`
}

// ProjectResult - текущая и спроецированная позиции
type ProjectResult struct {
	Current   *models.AccrualPosition `json:"current"`
	Projected *models.AccrualPosition `json:"projected"`
	Changed   bool                    `json:"changed"`
}

// Project возвращает позицию как если бы черновые изменения были применены
func (s *PositionService) Project(ctx context.Context, req ProjectRequest) (*ProjectResult, error) {
	if !common.IsHexAddress(req.User) {
		return nil, ErrBadAddress
	}
	params, err := s.marketParams(req.MarketKey)
	if err != nil {
		return nil, err
	}

	var delta models.PositionDelta
	if req.DiffBorrow != "" {
		delta.DiffBorrow, err = lending.NormalizeSignedAmount(req.DiffBorrow, req.LoanDecimals)
		if err != nil {
			return nil, err
		}
	}
	if req.DiffCollateral != "" {
		delta.DiffCollateral, err = lending.NormalizeSignedAmount(req.DiffCollateral, req.CollateralDecimals)
		if err != nil {
			return nil, err
		}
	}

	market, position, err := s.snapshot(ctx, common.HexToAddress(req.User), params)
	if err != nil {
		return nil, err
	}

	current := marketmath.Derive(market, position)
	projected, changed := lending.Project(current, market, delta)
	return &ProjectResult{
		Current:   current,
		Projected: projected,
		Changed:   changed,
	}, nil
}

// MaxRepay возвращает котировку полного погашения долга
func (s *PositionService) MaxRepay(ctx context.Context, userAddr, marketKey string) (lending.MaxRepayQuote, error) {
	if !common.IsHexAddress(userAddr) {
		return lending.MaxRepayQuote{}, ErrBadAddress
	}
	params, err := s.marketParams(marketKey)
	if err != nil {
		return lending.MaxRepayQuote{}, err
	}
	market, position, err := s.snapshot(ctx, common.HexToAddress(userAddr), params)
	if err != nil {
		return lending.MaxRepayQuote{}, err
	}
	return lending.QuoteMaxRepay(market, position), nil
}

func (s *PositionService) marketParams(uniqueKey string) (models.MarketParams, error) {
	listing, err := s.marketRepo.GetByKey(uniqueKey)
	if err != nil {
		return models.MarketParams{}, ErrMarketUnknown
	}
	return listing.ToParams()
}
