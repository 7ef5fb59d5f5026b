package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/ratelimit"
)

// Ошибки шлюза записи
var (
	ErrTxReverted = errors.New("transaction reverted")
)

// TxWriter реализует Writer: подписывает транзакции управляемым ключом
// и ждёт подтверждения через поллинг квитанций.
//
// Отправки сериализуются мьютексом: две параллельные транзакции от
// одного ключа получили бы одинаковый pending nonce.
type TxWriter struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	limiter *ratelimit.RateLimiter

	// confirmations - сколько блоков поверх блока включения считать
	// транзакцию финальной; pollInterval - шаг опроса квитанции
	confirmations uint64
	pollInterval  time.Duration

	mu sync.Mutex
}

// TxWriterConfig - параметры шлюза записи
type TxWriterConfig struct {
	PrivateKeyHex string
	ChainID       int64
	Confirmations uint64
	PollInterval  time.Duration
}

// NewTxWriter создаёт шлюз записи из hex-ключа.
func NewTxWriter(client *ethclient.Client, cfg TxWriterConfig, limiter *ratelimit.RateLimiter) (*TxWriter, error) {
	key, err := crypto.HexToECDSA(cfg.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 4 * time.Second
	}
	return &TxWriter{
		client:        client,
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		chainID:       big.NewInt(cfg.ChainID),
		limiter:       limiter,
		confirmations: cfg.Confirmations,
		pollInterval:  cfg.PollInterval,
	}, nil
}

// From возвращает адрес подписывающего ключа.
func (w *TxWriter) From() common.Address {
	return w.from
}

// Submit оценивает газ, подписывает и рассылает транзакцию.
//
// EstimateGas заодно симулирует вызов: revert ловится здесь, до траты
// газа, и возвращается как ошибка отправки.
func (w *TxWriter) Submit(ctx context.Context, call Call) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return common.Hash{}, err
		}
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := w.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.from,
		To:    &call.To,
		Value: value,
		Data:  call.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}

	// Запас 20% поверх оценки: состояние успевает сдвинуться между
	// оценкой и включением в блок
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &call.To,
		Value:    value,
		Data:     call.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash(), nil
}

// AwaitConfirmation опрашивает квитанцию до включения в блок и набора
// заданного числа подтверждений. Revert on-chain возвращается как
// ErrTxReverted. Отмена контекста прекращает наблюдение, но не саму
// транзакцию - она уже разослана.
func (w *TxWriter) AwaitConfirmation(ctx context.Context, txHash common.Hash) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, txHash)
		switch {
		case errors.Is(err, ethereum.NotFound):
			// ещё в mempool
		case err != nil:
			// транзиентная ошибка ноды - продолжаем опрос
		case receipt.Status != types.ReceiptStatusSuccessful:
			return fmt.Errorf("%w: tx %s", ErrTxReverted, txHash.Hex())
		default:
			confirmed, cerr := w.hasConfirmations(ctx, receipt)
			if cerr == nil && confirmed {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *TxWriter) hasConfirmations(ctx context.Context, receipt *types.Receipt) (bool, error) {
	if w.confirmations <= 1 {
		return true, nil
	}
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return false, err
	}
	included := receipt.BlockNumber.Uint64()
	return head >= included && head-included+1 >= w.confirmations, nil
}
