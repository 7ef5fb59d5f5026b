package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position - позиция пользователя в одном рынке
//
// Shares - единица учёта, стабильная при начислении процентов:
// количество shares не меняется, растёт только соответствующий объём
// актива. Collateral учитывается в сырых единицах актива, без shares -
// это сознательная асимметрия протокола (collateral не приносит процент).
//
// Снимок неизменяем: при любом изменении конструируется новое значение.
type Position struct {
	User         common.Address `json:"user"`
	MarketID     MarketID       `json:"market_id"`
	SupplyShares *big.Int       `json:"supply_shares"`
	BorrowShares *big.Int       `json:"borrow_shares"`
	Collateral   *big.Int       `json:"collateral"`
}

// Clone возвращает глубокую копию позиции.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.SupplyShares = cloneBig(p.SupplyShares)
	cp.BorrowShares = cloneBig(p.BorrowShares)
	cp.Collateral = cloneBig(p.Collateral)
	return &cp
}

// AccrualPosition - позиция, вычисленная вместе со снимком рынка
//
// Производные поля пересчитываются целиком при каждом обновлении снимка,
// частичное обновление не допускается.
type AccrualPosition struct {
	Position

	// Долг в единицах loan token (shares → assets через текущий курс)
	BorrowAssets *big.Int `json:"borrow_assets"`

	// Вклад в единицах loan token
	SupplyAssets *big.Int `json:"supply_assets"`

	// Loan-to-value, WAD (1e18 = 100%). nil если collateral = 0 и долга нет.
	LTV *big.Int `json:"ltv"`

	// Сколько ещё можно занять, не превысив LLTV
	MaxBorrowableAssets *big.Int `json:"max_borrowable_assets"`

	// Сколько collateral можно вывести, не став ликвидируемым
	WithdrawableCollateral *big.Int `json:"withdrawable_collateral"`
}

// PositionDelta - предлагаемое, но ещё не отправленное изменение позиции
//
// Живёт только между вводом пользователя и отправкой транзакции.
// Отрицательный DiffBorrow моделирует погашение долга (repay),
// отрицательный DiffCollateral - вывод залога.
type PositionDelta struct {
	DiffBorrow     *big.Int `json:"diff_borrow"`     // знаковое, в единицах loan token
	DiffCollateral *big.Int `json:"diff_collateral"` // знаковое, в единицах collateral token
}

// IsZero возвращает true если оба изменения нулевые (или не заданы).
func (d PositionDelta) IsZero() bool {
	return (d.DiffBorrow == nil || d.DiffBorrow.Sign() == 0) &&
		(d.DiffCollateral == nil || d.DiffCollateral.Sign() == 0)
}
