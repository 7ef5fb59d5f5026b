// Package chain предоставляет шлюзы чтения и записи on-chain состояния
// через JSON-RPC ноду Ethereum.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// Reader - шлюз чтения on-chain состояния
//
// Все чтения асинхронны (context) и могут независимо перезапрашиваться.
// Источник истины - цепочка; слои выше не кэшируют эти значения дольше
// одного цикла обработки.
type Reader interface {
	// Allowance возвращает текущий ERC-20 allowance (owner → spender)
	Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error)

	// Balance возвращает баланс ERC-20 токена
	Balance(ctx context.Context, asset, owner common.Address) (*big.Int, error)

	// Decimals возвращает количество десятичных знаков токена
	Decimals(ctx context.Context, asset common.Address) (int, error)

	// Market возвращает снимок учётного состояния рынка
	Market(ctx context.Context, params models.MarketParams) (*models.MarketState, error)

	// Position возвращает позицию пользователя в рынке
	Position(ctx context.Context, user common.Address, id models.MarketID) (*models.Position, error)
}

// Call - один вызов контракта для отправки
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int // nil = 0
}

// Writer - шлюз записи транзакций
//
// Submit может отклонить вызов до попадания в цепочку (симуляция,
// нехватка газа); AwaitConfirmation ждёт включения в блок и проверяет
// статус. Отменить уже разосланную транзакцию нельзя - отмена контекста
// лишь прекращает наблюдение.
type Writer interface {
	Submit(ctx context.Context, call Call) (common.Hash, error)
	AwaitConfirmation(ctx context.Context, txHash common.Hash) error
}
