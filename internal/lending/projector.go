package lending

import (
	"math/big"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/marketmath"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// projector.go - проекция гипотетической будущей позиции
//
// Чистая функция: по текущей позиции, снимку рынка и предлагаемой дельте
// (изменение займа, изменение collateral) строит позицию "как если бы
// сделка произошла прямо сейчас против текущего состояния рынка".
// Снимок рынка для гипотетической сделки заново НЕ начисляется.
//
// Проектор не валидирует и не ограничивает дельту: over-repay или вывод
// больше доступного проходят арифметически как есть. Его задача -
// "что получится", а не "можно ли так"; ограничения - забота вызывающего.

// Project вычисляет будущую позицию после применения дельты.
//
// Возвращает:
//   - future: новая AccrualPosition; nil если current или market отсутствуют
//     (данные ещё грузятся) - это не ошибка
//   - changed: true если хотя бы одно из borrowShares/supplyShares/collateral
//     строго отличается от исходного. Сравнение по значению, а не по
//     "дельта ненулевая": округление может превратить попытку изменения в no-op
//
// Никогда не возвращает ошибку и не паникует.
func Project(current *models.AccrualPosition, market *models.MarketState, delta models.PositionDelta) (*models.AccrualPosition, bool) {
	if current == nil || market == nil {
		return nil, false
	}

	// Нулевая дельта - короткое замыкание: возвращаем тот же указатель,
	// чтобы мемоизирующие потребители видели стабильное значение
	if delta.IsZero() {
		return current, false
	}

	next := current.Position.Clone()

	if delta.DiffBorrow != nil && delta.DiffBorrow.Sign() != 0 {
		// Дельта займа идёт через конвертацию в shares по курсу рынка
		// на момент оценки; знак сохраняется (repay = отрицательный займ)
		diffShares := marketmath.BorrowSharesSigned(market, delta.DiffBorrow)
		next.BorrowShares = new(big.Int).Add(orZero(next.BorrowShares), diffShares)
	}

	if delta.DiffCollateral != nil && delta.DiffCollateral.Sign() != 0 {
		// Collateral - в сырых единицах актива, без конвертации в shares
		next.Collateral = new(big.Int).Add(orZero(next.Collateral), delta.DiffCollateral)
	}

	changed := cmpOrZero(next.BorrowShares, current.BorrowShares) != 0 ||
		cmpOrZero(next.SupplyShares, current.SupplyShares) != 0 ||
		cmpOrZero(next.Collateral, current.Collateral) != 0

	if !changed {
		return current, false
	}

	return marketmath.Derive(market, next), true
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

func cmpOrZero(a, b *big.Int) int {
	return orZero(a).Cmp(orZero(b))
}
