package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/ratelimit"
)

// RPCReader реализует Reader поверх eth_call к JSON-RPC ноде.
//
// Все запросы идут через общий rate limiter: публичные ноды режут
// по частоте, а снимок рынка стоит четырёх вызовов.
type RPCReader struct {
	client  *ethclient.Client
	morpho  common.Address
	limiter *ratelimit.RateLimiter
}

// NewRPCReader создаёт шлюз чтения.
// limiter может быть nil - тогда запросы не ограничиваются.
func NewRPCReader(client *ethclient.Client, morpho common.Address, limiter *ratelimit.RateLimiter) *RPCReader {
	return &RPCReader{client: client, morpho: morpho, limiter: limiter}
}

// call выполняет eth_call против последнего блока
func (r *RPCReader) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// Allowance возвращает текущий ERC-20 allowance (owner → spender).
func (r *RPCReader) Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	out, err := r.call(ctx, asset, data)
	if err != nil {
		return nil, fmt.Errorf("allowance call: %w", err)
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("unpack allowance: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// Balance возвращает баланс ERC-20 токена.
func (r *RPCReader) Balance(ctx context.Context, asset, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := r.call(ctx, asset, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// Decimals возвращает количество десятичных знаков токена.
func (r *RPCReader) Decimals(ctx context.Context, asset common.Address) (int, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	out, err := r.call(ctx, asset, data)
	if err != nil {
		return 0, fmt.Errorf("decimals call: %w", err)
	}
	vals, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	return int(vals[0].(uint8)), nil
}

// Market собирает снимок рынка: учётные суммы из Morpho, цена из оракула,
// ставка из IRM. Четыре eth_call против одного и того же "последнего"
// блока без гарантии атомарности - для accrual-математики это приемлемо.
func (r *RPCReader) Market(ctx context.Context, params models.MarketParams) (*models.MarketState, error) {
	var id [32]byte = params.ID()

	data, err := morphoABI.Pack("market", id)
	if err != nil {
		return nil, fmt.Errorf("pack market: %w", err)
	}
	out, err := r.call(ctx, r.morpho, data)
	if err != nil {
		return nil, fmt.Errorf("market call: %w", err)
	}
	vals, err := morphoABI.Unpack("market", out)
	if err != nil {
		return nil, fmt.Errorf("unpack market: %w", err)
	}

	m := &models.MarketState{
		Params:            params,
		TotalSupplyAssets: vals[0].(*big.Int),
		TotalSupplyShares: vals[1].(*big.Int),
		TotalBorrowAssets: vals[2].(*big.Int),
		TotalBorrowShares: vals[3].(*big.Int),
		LastUpdate:        vals[4].(*big.Int).Int64(),
		Fee:               vals[5].(*big.Int),
		FetchedAt:         time.Now(),
	}

	if m.Price, err = r.oraclePrice(ctx, params.Oracle); err != nil {
		return nil, err
	}
	if m.BorrowRate, err = r.borrowRate(ctx, params, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *RPCReader) oraclePrice(ctx context.Context, oracle common.Address) (*big.Int, error) {
	// Рынок без оракула (чистый supply-рынок) - цена ноль
	if oracle == (common.Address{}) {
		return new(big.Int), nil
	}
	data, err := oracleABI.Pack("price")
	if err != nil {
		return nil, fmt.Errorf("pack price: %w", err)
	}
	out, err := r.call(ctx, oracle, data)
	if err != nil {
		return nil, fmt.Errorf("oracle price call: %w", err)
	}
	vals, err := oracleABI.Unpack("price", out)
	if err != nil {
		return nil, fmt.Errorf("unpack price: %w", err)
	}
	return vals[0].(*big.Int), nil
}

func (r *RPCReader) borrowRate(ctx context.Context, params models.MarketParams, m *models.MarketState) (*big.Int, error) {
	if params.IRM == (common.Address{}) {
		return new(big.Int), nil
	}
	data, err := irmABI.Pack("borrowRateView", toABIParams(params), abiMarket{
		TotalSupplyAssets: m.TotalSupplyAssets,
		TotalSupplyShares: m.TotalSupplyShares,
		TotalBorrowAssets: m.TotalBorrowAssets,
		TotalBorrowShares: m.TotalBorrowShares,
		LastUpdate:        big.NewInt(m.LastUpdate),
		Fee:               m.Fee,
	})
	if err != nil {
		return nil, fmt.Errorf("pack borrowRateView: %w", err)
	}
	out, err := r.call(ctx, params.IRM, data)
	if err != nil {
		return nil, fmt.Errorf("borrowRateView call: %w", err)
	}
	vals, err := irmABI.Unpack("borrowRateView", out)
	if err != nil {
		return nil, fmt.Errorf("unpack borrowRateView: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// Position возвращает позицию пользователя в рынке.
func (r *RPCReader) Position(ctx context.Context, user common.Address, id models.MarketID) (*models.Position, error) {
	var id32 [32]byte = id
	data, err := morphoABI.Pack("position", id32, user)
	if err != nil {
		return nil, fmt.Errorf("pack position: %w", err)
	}
	out, err := r.call(ctx, r.morpho, data)
	if err != nil {
		return nil, fmt.Errorf("position call: %w", err)
	}
	vals, err := morphoABI.Unpack("position", out)
	if err != nil {
		return nil, fmt.Errorf("unpack position: %w", err)
	}
	return &models.Position{
		User:         user,
		MarketID:     id,
		SupplyShares: vals[0].(*big.Int),
		BorrowShares: vals[1].(*big.Int),
		Collateral:   vals[2].(*big.Int),
	}, nil
}
