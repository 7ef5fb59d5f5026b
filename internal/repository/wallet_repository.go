package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// Ошибки репозитория кошельков
var (
	ErrWalletNotFound = errors.New("wallet not found")
)

// WalletRepository - управляемые подписывающие ключи (таблица wallets)
//
// В колонке encrypted_key лежит только шифртекст (AES-256-GCM, см.
// pkg/crypto). Репозиторий не видит plaintext ни на одном пути.
type WalletRepository struct {
	db *sql.DB
}

// NewWalletRepository создает новый экземпляр репозитория
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create сохраняет кошелёк с уже зашифрованным ключом
func (r *WalletRepository) Create(w *models.WalletRecord) error {
	query := `
		INSERT INTO wallets (address, label, encrypted_key, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	w.CreatedAt = time.Now()

	return r.db.QueryRow(
		query,
		w.Address,
		w.Label,
		w.EncryptedKey,
		w.IsDefault,
		w.CreatedAt,
	).Scan(&w.ID)
}

// GetByAddress возвращает кошелёк по адресу
func (r *WalletRepository) GetByAddress(address string) (*models.WalletRecord, error) {
	query := `
		SELECT id, address, label, encrypted_key, is_default, created_at
		FROM wallets
		WHERE address = $1`

	return r.scanOne(r.db.QueryRow(query, address))
}

// GetDefault возвращает кошелёк по умолчанию
func (r *WalletRepository) GetDefault() (*models.WalletRecord, error) {
	query := `
		SELECT id, address, label, encrypted_key, is_default, created_at
		FROM wallets
		WHERE is_default = true
		LIMIT 1`

	return r.scanOne(r.db.QueryRow(query))
}

// SetDefault делает кошелёк дефолтным, снимая флаг с остальных
func (r *WalletRepository) SetDefault(address string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE wallets SET is_default = false WHERE is_default = true`); err != nil {
		return err
	}
	result, err := tx.Exec(`UPDATE wallets SET is_default = true WHERE address = $1`, address)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrWalletNotFound
	}
	return tx.Commit()
}

func (r *WalletRepository) scanOne(row *sql.Row) (*models.WalletRecord, error) {
	w := &models.WalletRecord{}
	err := row.Scan(
		&w.ID,
		&w.Address,
		&w.Label,
		&w.EncryptedKey,
		&w.IsDefault,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}
