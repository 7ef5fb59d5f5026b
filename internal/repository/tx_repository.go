package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// Ошибки репозитория транзакций
var (
	ErrTxNotFound = errors.New("transaction not found")
)

// TxRepository - журнал транзакций (таблица transactions)
//
// Журнал append-ориентированный: запись создаётся при старте операции
// и дальше только обновляет фазу/хэш/ошибку. История никогда не удаляется.
type TxRepository struct {
	db *sql.DB
}

// NewTxRepository создает новый экземпляр репозитория
func NewTxRepository(db *sql.DB) *TxRepository {
	return &TxRepository{db: db}
}

// Create создает запись о транзакции
func (r *TxRepository) Create(tx *models.TxRecord) error {
	query := `
		INSERT INTO transactions (user_address, market_key, action, assets, shares, is_shares, phase, tx_hash, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	tx.CreatedAt = time.Now()

	return r.db.QueryRow(
		query,
		tx.User,
		tx.MarketKey,
		tx.Action,
		tx.Assets,
		tx.Shares,
		tx.IsShares,
		tx.Phase,
		tx.TxHash,
		tx.ErrorMsg,
		tx.CreatedAt,
	).Scan(&tx.ID)
}

// UpdatePhase обновляет фазу, хэш и сообщение об ошибке записи
func (r *TxRepository) UpdatePhase(id int, phase, txHash, errorMsg string) error {
	query := `
		UPDATE transactions
		SET phase = $1, tx_hash = $2, error_message = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(query, phase, txHash, errorMsg, time.Now(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTxNotFound
	}
	return nil
}

// GetByID возвращает запись по ID
func (r *TxRepository) GetByID(id int) (*models.TxRecord, error) {
	query := `
		SELECT id, user_address, market_key, action, assets, shares, is_shares, phase, tx_hash, error_message, created_at, updated_at
		FROM transactions
		WHERE id = $1`

	tx := &models.TxRecord{}
	err := r.db.QueryRow(query, id).Scan(
		&tx.ID,
		&tx.User,
		&tx.MarketKey,
		&tx.Action,
		&tx.Assets,
		&tx.Shares,
		&tx.IsShares,
		&tx.Phase,
		&tx.TxHash,
		&tx.ErrorMsg,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return tx, nil
}

// GetByUser возвращает историю транзакций пользователя, свежие первыми
func (r *TxRepository) GetByUser(user string, limit int) ([]*models.TxRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_address, market_key, action, assets, shares, is_shares, phase, tx_hash, error_message, created_at, updated_at
		FROM transactions
		WHERE user_address = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, user, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.TxRecord
	for rows.Next() {
		tx := &models.TxRecord{}
		err := rows.Scan(
			&tx.ID,
			&tx.User,
			&tx.MarketKey,
			&tx.Action,
			&tx.Assets,
			&tx.Shares,
			&tx.IsShares,
			&tx.Phase,
			&tx.TxHash,
			&tx.ErrorMsg,
			&tx.CreatedAt,
			&tx.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// GetPending возвращает записи в нетерминальных фазах - для восстановления
// наблюдения после рестарта
func (r *TxRepository) GetPending() ([]*models.TxRecord, error) {
	query := `
		SELECT id, user_address, market_key, action, assets, shares, is_shares, phase, tx_hash, error_message, created_at, updated_at
		FROM transactions
		WHERE phase IN ($1, $2)
		ORDER BY created_at ASC`

	rows, err := r.db.Query(query, models.PhaseApproving, models.PhaseActing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.TxRecord
	for rows.Next() {
		tx := &models.TxRecord{}
		err := rows.Scan(
			&tx.ID,
			&tx.User,
			&tx.MarketKey,
			&tx.Action,
			&tx.Assets,
			&tx.Shares,
			&tx.IsShares,
			&tx.Phase,
			&tx.TxHash,
			&tx.ErrorMsg,
			&tx.CreatedAt,
			&tx.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
