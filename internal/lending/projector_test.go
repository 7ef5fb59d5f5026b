package lending

import (
	"math/big"
	"testing"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/marketmath"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

func bi(x int64) *big.Int { return big.NewInt(x) }

// exp10 возвращает 10^n
func exp10(n int64) *big.Int {
	return new(big.Int).Exp(bi(10), bi(n), nil)
}

// projMarket - рынок с крупными суммами, чтобы виртуальные shares/assets
// были пренебрежимы, и ценой 1:1
func projMarket() *models.MarketState {
	return &models.MarketState{
		Params: models.MarketParams{
			LLTV: new(big.Int).Div(new(big.Int).Mul(marketmath.WAD, bi(86)), bi(100)), // 86%
		},
		TotalSupplyAssets: new(big.Int).Mul(bi(2_000_000), exp10(18)),
		TotalSupplyShares: new(big.Int).Mul(bi(2_000_000), exp10(24)),
		TotalBorrowAssets: new(big.Int).Mul(bi(1_050_000), exp10(18)),
		TotalBorrowShares: new(big.Int).Mul(bi(1_000_000), exp10(24)), // курс 1.05
		Price:             new(big.Int).Set(marketmath.OraclePriceScale),
	}
}

func projPosition(m *models.MarketState) *models.AccrualPosition {
	p := &models.Position{
		SupplyShares: new(big.Int).Mul(bi(10), exp10(24)),
		BorrowShares: new(big.Int).Mul(bi(100), exp10(24)),
		Collateral:   new(big.Int).Mul(bi(1000), exp10(18)),
	}
	return marketmath.Derive(m, p)
}

// TestProject_NilInputs: отсутствующие данные - не ошибка, проекция молчит
func TestProject_NilInputs(t *testing.T) {
	m := projMarket()
	p := projPosition(m)
	delta := models.PositionDelta{DiffBorrow: bi(1)}

	if got, changed := Project(nil, m, delta); got != nil || changed {
		t.Errorf("Project(nil, m, delta) = (%v, %v), want (nil, false)", got, changed)
	}
	if got, changed := Project(p, nil, delta); got != nil || changed {
		t.Errorf("Project(p, nil, delta) = (%v, %v), want (nil, false)", got, changed)
	}
}

// TestProject_ZeroDelta: нулевая дельта возвращает тот же указатель
func TestProject_ZeroDelta(t *testing.T) {
	m := projMarket()
	p := projPosition(m)

	tests := []struct {
		name  string
		delta models.PositionDelta
	}{
		{"nil поля", models.PositionDelta{}},
		{"нулевые значения", models.PositionDelta{DiffBorrow: bi(0), DiffCollateral: bi(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Project(p, m, tt.delta)
			if changed {
				t.Error("changed = true для нулевой дельты")
			}
			if got != p {
				t.Error("ожидался тот же указатель для мемоизации")
			}
		})
	}
}

// TestProject_CollateralExact: дельта collateral применяется в сырых
// единицах, без какой-либо конвертации
func TestProject_CollateralExact(t *testing.T) {
	m := projMarket()
	p := projPosition(m)

	add := new(big.Int).Mul(bi(7), exp10(18))
	got, changed := Project(p, m, models.PositionDelta{DiffCollateral: add})
	if !changed {
		t.Fatal("changed = false")
	}
	want := new(big.Int).Add(p.Collateral, add)
	if got.Collateral.Cmp(want) != 0 {
		t.Errorf("Collateral = %s, want %s", got.Collateral, want)
	}
	if got.BorrowShares.Cmp(p.BorrowShares) != 0 {
		t.Errorf("BorrowShares изменились при дельте collateral")
	}
	// Больше collateral - больше доступный займ
	if got.MaxBorrowableAssets.Cmp(p.MaxBorrowableAssets) <= 0 {
		t.Error("MaxBorrowableAssets не вырос после добавления collateral")
	}
}

// TestProject_BorrowRoundTrip: займ X и затем погашение X возвращают
// долг к исходному с точностью до одного шага округления
func TestProject_BorrowRoundTrip(t *testing.T) {
	m := projMarket()
	p := projPosition(m)

	x := new(big.Int).Mul(bi(123), exp10(18))
	mid, changed := Project(p, m, models.PositionDelta{DiffBorrow: x})
	if !changed {
		t.Fatal("займ не изменил позицию")
	}
	back, changed := Project(mid, m, models.PositionDelta{DiffBorrow: new(big.Int).Neg(x)})
	if !changed {
		t.Fatal("погашение не изменило позицию")
	}

	drift := new(big.Int).Sub(back.BorrowShares, p.BorrowShares)
	if drift.CmpAbs(bi(2)) > 0 {
		t.Errorf("дрейф shares после цикла займ/погашение = %s, ожидалось |drift| <= 2", drift)
	}
}

// TestProject_RepayReducesDebt: отрицательная дельта займа уменьшает долг
// через ту же конвертацию shares, что и займ
func TestProject_RepayReducesDebt(t *testing.T) {
	m := projMarket()
	p := projPosition(m)

	repay := new(big.Int).Mul(bi(50), exp10(18))
	got, changed := Project(p, m, models.PositionDelta{DiffBorrow: new(big.Int).Neg(repay)})
	if !changed {
		t.Fatal("changed = false")
	}
	if got.BorrowShares.Cmp(p.BorrowShares) >= 0 {
		t.Errorf("BorrowShares не уменьшились: %s -> %s", p.BorrowShares, got.BorrowShares)
	}

	wantShares := new(big.Int).Sub(p.BorrowShares, marketmath.BorrowSharesUp(m, repay))
	if got.BorrowShares.Cmp(wantShares) != 0 {
		t.Errorf("BorrowShares = %s, want %s (через единую конвертацию)", got.BorrowShares, wantShares)
	}
}

// TestProject_OverRepayNotClamped: погашение больше долга не ограничивается -
// проекция показывает отрицательный остаток shares как есть
func TestProject_OverRepayNotClamped(t *testing.T) {
	m := projMarket()
	p := projPosition(m)

	huge := new(big.Int).Mul(bi(1_000_000), exp10(18))
	got, changed := Project(p, m, models.PositionDelta{DiffBorrow: new(big.Int).Neg(huge)})
	if !changed {
		t.Fatal("changed = false")
	}
	if got.BorrowShares.Sign() >= 0 {
		t.Errorf("ожидался отрицательный остаток shares, получено %s", got.BorrowShares)
	}
}

// TestProject_BorrowAtRate: на рынке с курсом 1.05 займ конвертируется
// по текущему курсу снимка, без повторного начисления процентов
func TestProject_BorrowAtRate(t *testing.T) {
	m := projMarket() // totalBorrowAssets/totalBorrowShares = 1.05 (в масштабе 1e6)
	p := projPosition(m)

	x := new(big.Int).Mul(bi(210), exp10(18))
	got, changed := Project(p, m, models.PositionDelta{DiffBorrow: x})
	if !changed {
		t.Fatal("changed = false")
	}

	// 210 assets по курсу 1.05 - это 200e6-масштабных shares;
	// допускаем один шаг округления вверх
	added := new(big.Int).Sub(got.BorrowShares, p.BorrowShares)
	want := new(big.Int).Mul(bi(200), exp10(24))
	drift := new(big.Int).Sub(added, want)
	if drift.Sign() < 0 || drift.Cmp(bi(2)) > 0 {
		t.Errorf("добавленные shares = %s, want %s (+/- шаг округления)", added, want)
	}
}

// TestProject_DoesNotMutateInputs: проекция не трогает исходные структуры
func TestProject_DoesNotMutateInputs(t *testing.T) {
	m := projMarket()
	p := projPosition(m)
	origShares := new(big.Int).Set(p.BorrowShares)
	origCollateral := new(big.Int).Set(p.Collateral)
	origTotalBorrow := new(big.Int).Set(m.TotalBorrowAssets)

	_, _ = Project(p, m, models.PositionDelta{
		DiffBorrow:     new(big.Int).Mul(bi(5), exp10(18)),
		DiffCollateral: new(big.Int).Mul(bi(5), exp10(18)),
	})

	if p.BorrowShares.Cmp(origShares) != 0 || p.Collateral.Cmp(origCollateral) != 0 {
		t.Error("исходная позиция изменена")
	}
	if m.TotalBorrowAssets.Cmp(origTotalBorrow) != 0 {
		t.Error("исходный снимок рынка изменён")
	}
}

func BenchmarkProject(b *testing.B) {
	m := projMarket()
	p := projPosition(m)
	delta := models.PositionDelta{
		DiffBorrow:     new(big.Int).Mul(bi(10), exp10(18)),
		DiffCollateral: new(big.Int).Mul(bi(3), exp10(18)),
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Project(p, m, delta)
	}
}
