package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MarketID - уникальный идентификатор рынка Morpho
//
// Вычисляется как keccak256 от ABI-кодированных параметров рынка,
// поэтому совпадает с id, используемым контрактом on-chain.
type MarketID = common.Hash

// MarketParams - неизменяемые параметры рынка
//
// Рынок = пара (loan token, collateral token) с фиксированным порогом
// ликвидации LLTV, оракулом цены и моделью процентной ставки (IRM).
type MarketParams struct {
	LoanToken       common.Address `json:"loan_token"`
	CollateralToken common.Address `json:"collateral_token"`
	Oracle          common.Address `json:"oracle"`
	IRM             common.Address `json:"irm"`
	LLTV            *big.Int       `json:"lltv"` // WAD (1e18 = 100%)
}

// ID вычисляет on-chain идентификатор рынка.
//
// Кодирование: 5 статических слов по 32 байта
// (адреса дополняются нулями слева, LLTV - big-endian uint256).
func (p MarketParams) ID() MarketID {
	buf := make([]byte, 0, 5*32)
	buf = append(buf, common.LeftPadBytes(p.LoanToken.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(p.CollateralToken.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(p.Oracle.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(p.IRM.Bytes(), 32)...)
	lltv := p.LLTV
	if lltv == nil {
		lltv = new(big.Int)
	}
	buf = append(buf, common.LeftPadBytes(lltv.Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// MarketState - агрегированное учётное состояние рынка на момент времени
//
// Снимок, обновляемый из chain reader'а. Код проекции только читает его,
// никогда не мутирует: при изменении склеивается новый снимок.
type MarketState struct {
	Params MarketParams `json:"params"`

	// Суммарные объёмы в базовых единицах актива и в shares
	TotalSupplyAssets *big.Int `json:"total_supply_assets"`
	TotalSupplyShares *big.Int `json:"total_supply_shares"`
	TotalBorrowAssets *big.Int `json:"total_borrow_assets"`
	TotalBorrowShares *big.Int `json:"total_borrow_shares"`

	// Момент последнего начисления процентов (unix, секунды)
	LastUpdate int64 `json:"last_update"`

	// Доля протокола от начисленных процентов, WAD
	Fee *big.Int `json:"fee"`

	// Цена collateral в единицах loan token, масштаб 1e36
	Price *big.Int `json:"price"`

	// Текущая ставка займа IRM (в секунду, WAD)
	BorrowRate *big.Int `json:"borrow_rate"`

	FetchedAt time.Time `json:"fetched_at"`
}

// Clone возвращает глубокую копию снимка.
// Нужна перед начислением процентов, чтобы не трогать исходный снимок.
func (m *MarketState) Clone() *MarketState {
	if m == nil {
		return nil
	}
	cp := *m
	cp.TotalSupplyAssets = cloneBig(m.TotalSupplyAssets)
	cp.TotalSupplyShares = cloneBig(m.TotalSupplyShares)
	cp.TotalBorrowAssets = cloneBig(m.TotalBorrowAssets)
	cp.TotalBorrowShares = cloneBig(m.TotalBorrowShares)
	cp.Fee = cloneBig(m.Fee)
	cp.Price = cloneBig(m.Price)
	cp.BorrowRate = cloneBig(m.BorrowRate)
	cp.Params.LLTV = cloneBig(m.Params.LLTV)
	return &cp
}

func cloneBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

// MarketListing - строка каталога рынков из Morpho API
//
// Кэшируется в БД и отдаётся фронтенду списком. Числа с плавающей точкой
// здесь допустимы: это витринные данные, не участвующие в расчётах сумм.
type MarketListing struct {
	ID               int       `json:"id" db:"id"`
	UniqueKey        string    `json:"unique_key" db:"unique_key"` // hex MarketID
	LoanSymbol       string    `json:"loan_symbol" db:"loan_symbol"`
	CollateralSymbol string    `json:"collateral_symbol" db:"collateral_symbol"`
	LoanAddress      string    `json:"loan_address" db:"loan_address"`
	CollateralAddr   string    `json:"collateral_address" db:"collateral_address"`
	OracleAddr       string    `json:"oracle_address" db:"oracle_address"`
	IRMAddr          string    `json:"irm_address" db:"irm_address"`
	LLTV             string    `json:"lltv" db:"lltv"` // WAD как строка
	SupplyAPY        float64   `json:"supply_apy" db:"supply_apy"`
	BorrowAPY        float64   `json:"borrow_apy" db:"borrow_apy"`
	SupplyAssetsUSD  float64   `json:"supply_assets_usd" db:"supply_assets_usd"`
	BorrowAssetsUSD  float64   `json:"borrow_assets_usd" db:"borrow_assets_usd"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// ToParams восстанавливает on-chain параметры рынка из строки каталога.
// Ошибка означает битую строку (не-десятичный LLTV).
func (l *MarketListing) ToParams() (MarketParams, error) {
	lltv, ok := new(big.Int).SetString(l.LLTV, 10)
	if !ok {
		return MarketParams{}, fmt.Errorf("market %s: bad lltv %q", l.UniqueKey, l.LLTV)
	}
	return MarketParams{
		LoanToken:       common.HexToAddress(l.LoanAddress),
		CollateralToken: common.HexToAddress(l.CollateralAddr),
		Oracle:          common.HexToAddress(l.OracleAddr),
		IRM:             common.HexToAddress(l.IRMAddr),
		LLTV:            lltv,
	}, nil
}
