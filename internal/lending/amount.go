package lending

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/marketmath"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// amount.go - каноническая нормализация сумм
//
// Единственная точка, где десятичная строка пользователя превращается
// в целые базовые единицы токена. Проверка достаточности allowance и
// сумма самой отправки обязаны исходить из ОДНОГО результата этой
// нормализации - если округлять в двух местах независимо, approve на
// округлённую вниз сумму окажется недостаточным для округлённой вверх
// отправки (и наоборот).

// Ошибки нормализации
var (
	ErrEmptyAmount    = errors.New("amount is empty")
	ErrInvalidAmount  = errors.New("amount is not a valid decimal number")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooManyDigits  = errors.New("amount has more fractional digits than token decimals")
)

// NormalizeAmount переводит десятичную строку в базовые единицы токена.
//
// Политика округления: лишние дробные разряды - ошибка, а не молчаливое
// усечение. Пользователь видит ровно то, что будет отправлено.
//
// Примеры (decimals = 6):
//   - "1.5"        → 1500000
//   - "0.000001"   → 1
//   - "0.0000001"  → ErrTooManyDigits
//   - "-1"         → ErrNegativeAmount
func NormalizeAmount(raw string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, ErrEmptyAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if d.Sign() < 0 {
		return nil, ErrNegativeAmount
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, ErrTooManyDigits
	}

	return scaled.BigInt(), nil
}

// NormalizeSignedAmount - то же, но допускает знак (для дельт проекции).
func NormalizeSignedAmount(raw string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	neg := strings.HasPrefix(s, "-")
	mag, err := NormalizeAmount(strings.TrimPrefix(s, "-"), decimals)
	if err != nil {
		return nil, err
	}
	if neg {
		mag.Neg(mag)
	}
	return mag, nil
}

// maxBufferNum/maxBufferDen - буфер 0.1% поверх оценки долга при Max:
// за время между оценкой и включением в блок долг успевает подрасти.
var (
	maxBufferNum = big.NewInt(1001)
	maxBufferDen = big.NewInt(1000)
)

// MaxRepayQuote - котировка полного погашения долга
//
// Отправка при Max всегда идёт в shares (IsShares = true): остаток долга
// в shares известен точно, а его десятичное отображение - нет. Повторное
// независимое округление исключается по построению.
type MaxRepayQuote struct {
	// Shares - точный остаток долга, аргумент отправки
	Shares *big.Int
	// AssetsCeil - оценка в assets с буфером 0.1%; используется для
	// проверки allowance и баланса, НЕ для отправки
	AssetsCeil *big.Int
}

// QuoteMaxRepay строит котировку полного погашения по текущему курсу рынка.
func QuoteMaxRepay(m *models.MarketState, p *models.Position) MaxRepayQuote {
	shares := new(big.Int)
	if p != nil && p.BorrowShares != nil {
		shares.Set(p.BorrowShares)
	}
	assets := marketmath.BorrowAssetsUp(m, shares)
	assets.Mul(assets, maxBufferNum)
	assets.Div(assets, maxBufferDen)
	return MaxRepayQuote{Shares: shares, AssetsCeil: assets}
}
