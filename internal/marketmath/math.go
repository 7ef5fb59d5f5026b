// Package marketmath реализует учётную математику рынков Morpho Blue:
// конвертацию shares ↔ assets, начисление процентов и производные
// метрики позиции (LTV, доступный займ, выводимый collateral).
//
// Все функции чистые: работают на big.Int, без I/O и побочных эффектов.
// Формулы соответствуют опубликованной математике протокола
// (SharesMathLib / MathLib): виртуальные shares и assets против
// inflation-атак, округление всегда в пользу протокола.
package marketmath

import (
	"math/big"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

var (
	// WAD - фиксированная точка 1e18 (100%)
	WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// OraclePriceScale - масштаб цены оракула, 1e36
	OraclePriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)

	// VirtualShares и VirtualAssets добавляются к знаменателям конвертации,
	// чтобы курс был определён и на пустом рынке
	VirtualShares = big.NewInt(1_000_000)
	VirtualAssets = big.NewInt(1)
)

// MulDivDown возвращает floor(x*y/d). При d=0 возвращает 0.
func MulDivDown(x, y, d *big.Int) *big.Int {
	if d == nil || d.Sign() == 0 {
		return new(big.Int)
	}
	p := new(big.Int).Mul(nz(x), nz(y))
	return p.Div(p, d)
}

// MulDivUp возвращает ceil(x*y/d). При d=0 возвращает 0.
func MulDivUp(x, y, d *big.Int) *big.Int {
	if d == nil || d.Sign() == 0 {
		return new(big.Int)
	}
	p := new(big.Int).Mul(nz(x), nz(y))
	p.Add(p, new(big.Int).Sub(d, big.NewInt(1)))
	return p.Div(p, d)
}

// WMulDown возвращает floor(x*y/WAD).
func WMulDown(x, y *big.Int) *big.Int {
	return MulDivDown(x, y, WAD)
}

// WDivDown возвращает floor(x*WAD/y).
func WDivDown(x, y *big.Int) *big.Int {
	return MulDivDown(x, WAD, y)
}

// WDivUp возвращает ceil(x*WAD/y).
func WDivUp(x, y *big.Int) *big.Int {
	return MulDivUp(x, WAD, y)
}

// WTaylorCompounded аппроксимирует непрерывное начисление e^(x*n)-1
// тремя членами ряда Тейлора. x - ставка в секунду (WAD), n - секунды.
func WTaylorCompounded(x *big.Int, n int64) *big.Int {
	first := new(big.Int).Mul(nz(x), big.NewInt(n))
	second := MulDivDown(first, first, new(big.Int).Mul(big.NewInt(2), WAD))
	third := MulDivDown(second, first, new(big.Int).Mul(big.NewInt(3), WAD))
	sum := new(big.Int).Add(first, second)
	return sum.Add(sum, third)
}

// ============================================================
// Конвертация shares ↔ assets
// ============================================================

// ToSharesDown конвертирует assets → shares с округлением вниз.
func ToSharesDown(assets, totalAssets, totalShares *big.Int) *big.Int {
	return MulDivDown(assets, addVirtualShares(totalShares), addVirtualAssets(totalAssets))
}

// ToSharesUp конвертирует assets → shares с округлением вверх.
func ToSharesUp(assets, totalAssets, totalShares *big.Int) *big.Int {
	return MulDivUp(assets, addVirtualShares(totalShares), addVirtualAssets(totalAssets))
}

// ToAssetsDown конвертирует shares → assets с округлением вниз.
func ToAssetsDown(shares, totalAssets, totalShares *big.Int) *big.Int {
	return MulDivDown(shares, addVirtualAssets(totalAssets), addVirtualShares(totalShares))
}

// ToAssetsUp конвертирует shares → assets с округлением вверх.
func ToAssetsUp(shares, totalAssets, totalShares *big.Int) *big.Int {
	return MulDivUp(shares, addVirtualAssets(totalAssets), addVirtualShares(totalShares))
}

// ============================================================
// Конвертация против снимка рынка
// ============================================================

// BorrowSharesUp - assets → borrow shares, округление вверх
// (занимающий должен больше shares, протокол не теряет).
func BorrowSharesUp(m *models.MarketState, assets *big.Int) *big.Int {
	return ToSharesUp(assets, m.TotalBorrowAssets, m.TotalBorrowShares)
}

// BorrowSharesDown - assets → borrow shares, округление вниз.
func BorrowSharesDown(m *models.MarketState, assets *big.Int) *big.Int {
	return ToSharesDown(assets, m.TotalBorrowAssets, m.TotalBorrowShares)
}

// BorrowAssetsUp - borrow shares → assets, округление вверх
// (долг считается в большую сторону).
func BorrowAssetsUp(m *models.MarketState, shares *big.Int) *big.Int {
	return ToAssetsUp(shares, m.TotalBorrowAssets, m.TotalBorrowShares)
}

// SupplySharesDown - assets → supply shares, округление вниз.
func SupplySharesDown(m *models.MarketState, assets *big.Int) *big.Int {
	return ToSharesDown(assets, m.TotalSupplyAssets, m.TotalSupplyShares)
}

// SupplyAssetsDown - supply shares → assets, округление вниз.
func SupplyAssetsDown(m *models.MarketState, shares *big.Int) *big.Int {
	return ToAssetsDown(shares, m.TotalSupplyAssets, m.TotalSupplyShares)
}

// BorrowSharesSigned конвертирует знаковое изменение долга в знаковые shares.
//
// Инвариант проекции: repay моделируется как отрицательная дельта займа,
// пропущенная через ту же функцию конвертации, а не отдельным вычитанием
// в assets - иначе теряется согласованность единиц с остальной accrual-математикой.
func BorrowSharesSigned(m *models.MarketState, assets *big.Int) *big.Int {
	if assets == nil || assets.Sign() == 0 {
		return new(big.Int)
	}
	mag := BorrowSharesUp(m, new(big.Int).Abs(assets))
	if assets.Sign() < 0 {
		return mag.Neg(mag)
	}
	return mag
}

// ============================================================
// Начисление процентов
// ============================================================

// AccrueInterest возвращает новый снимок рынка с процентами, начисленными
// до момента now (unix, секунды). Исходный снимок не изменяется.
//
// interest = totalBorrowAssets × (e^(rate×elapsed) - 1), Taylor 3 члена.
// Доля протокола (fee) конвертируется в supply shares по курсу
// "после процентов, до fee" - как в контракте.
func AccrueInterest(m *models.MarketState, now int64) *models.MarketState {
	out := m.Clone()
	if out == nil {
		return nil
	}
	elapsed := now - m.LastUpdate
	if elapsed <= 0 || m.BorrowRate == nil || m.BorrowRate.Sign() == 0 {
		return out
	}
	if m.TotalBorrowAssets == nil || m.TotalBorrowAssets.Sign() == 0 {
		out.LastUpdate = now
		return out
	}

	interest := WMulDown(m.TotalBorrowAssets, WTaylorCompounded(m.BorrowRate, elapsed))
	out.TotalBorrowAssets = new(big.Int).Add(nz(m.TotalBorrowAssets), interest)
	out.TotalSupplyAssets = new(big.Int).Add(nz(m.TotalSupplyAssets), interest)

	if m.Fee != nil && m.Fee.Sign() > 0 {
		feeAmount := WMulDown(interest, m.Fee)
		denomAssets := new(big.Int).Sub(out.TotalSupplyAssets, feeAmount)
		feeShares := ToSharesDown(feeAmount, denomAssets, m.TotalSupplyShares)
		out.TotalSupplyShares = new(big.Int).Add(nz(m.TotalSupplyShares), feeShares)
	}

	out.LastUpdate = now
	return out
}

// ============================================================
// Производные метрики позиции
// ============================================================

// CollateralValue возвращает стоимость collateral в единицах loan token.
func CollateralValue(m *models.MarketState, collateral *big.Int) *big.Int {
	return MulDivDown(collateral, m.Price, OraclePriceScale)
}

// LTV возвращает loan-to-value в WAD. nil если collateral ничего не стоит.
func LTV(m *models.MarketState, p *models.Position) *big.Int {
	value := CollateralValue(m, p.Collateral)
	if value.Sign() == 0 {
		return nil
	}
	return WDivUp(BorrowAssetsUp(m, p.BorrowShares), value)
}

// MaxBorrowableAssets возвращает, сколько ещё можно занять без превышения LLTV.
func MaxBorrowableAssets(m *models.MarketState, p *models.Position) *big.Int {
	limit := WMulDown(CollateralValue(m, p.Collateral), m.Params.LLTV)
	debt := BorrowAssetsUp(m, p.BorrowShares)
	if limit.Cmp(debt) <= 0 {
		return new(big.Int)
	}
	return limit.Sub(limit, debt)
}

// WithdrawableCollateral возвращает объём collateral, который можно вывести,
// оставив позицию ниже LLTV. Округление в сторону протокола: требуемый
// collateral считается вверх.
func WithdrawableCollateral(m *models.MarketState, p *models.Position) *big.Int {
	debt := BorrowAssetsUp(m, p.BorrowShares)
	if debt.Sign() == 0 {
		return new(big.Int).Set(nz(p.Collateral))
	}
	if m.Price == nil || m.Price.Sign() == 0 || m.Params.LLTV == nil || m.Params.LLTV.Sign() == 0 {
		return new(big.Int)
	}
	requiredValue := WDivUp(debt, m.Params.LLTV)
	requiredCollateral := MulDivUp(requiredValue, OraclePriceScale, m.Price)
	col := nz(p.Collateral)
	if requiredCollateral.Cmp(col) >= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(col, requiredCollateral)
}

// Derive собирает AccrualPosition из позиции и снимка рынка.
// Все производные поля пересчитываются целиком.
func Derive(m *models.MarketState, p *models.Position) *models.AccrualPosition {
	if m == nil || p == nil {
		return nil
	}
	return &models.AccrualPosition{
		Position:               *p.Clone(),
		BorrowAssets:           BorrowAssetsUp(m, p.BorrowShares),
		SupplyAssets:           SupplyAssetsDown(m, p.SupplyShares),
		LTV:                    LTV(m, p),
		MaxBorrowableAssets:    MaxBorrowableAssets(m, p),
		WithdrawableCollateral: WithdrawableCollateral(m, p),
	}
}

func addVirtualShares(totalShares *big.Int) *big.Int {
	return new(big.Int).Add(nz(totalShares), VirtualShares)
}

func addVirtualAssets(totalAssets *big.Int) *big.Int {
	return new(big.Int).Add(nz(totalAssets), VirtualAssets)
}

// nz заменяет nil на ноль, чтобы не проверять указатели в каждой формуле.
func nz(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
