package service

import (
	"errors"
	"strings"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/crypto"
	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/utils"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Ошибки сервиса кошельков
var (
	ErrBadPrivateKey = errors.New("invalid private key")
	ErrNoWallets     = errors.New("no wallets registered")
)

// WalletService управляет подписывающими ключами
//
// Ключи хранятся в БД только в зашифрованном виде; мастер-ключ
// поступает из конфигурации и в БД не попадает.
type WalletService struct {
	repo      WalletRepositoryInterface
	masterKey []byte
	log       *utils.Logger
}

// NewWalletService создает новый экземпляр сервиса кошельков
func NewWalletService(repo WalletRepositoryInterface, masterKey []byte, log *utils.Logger) (*WalletService, error) {
	if err := crypto.ValidateKey(masterKey); err != nil {
		return nil, err
	}
	if log == nil {
		log = utils.L()
	}
	return &WalletService{
		repo:      repo,
		masterKey: masterKey,
		log:       log.WithComponent("wallet"),
	}, nil
}

// Import регистрирует приватный ключ под заданной меткой.
// Адрес выводится из ключа; сам ключ шифруется перед записью.
func (s *WalletService) Import(privateKeyHex, label string) (*models.WalletRecord, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	priv, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, ErrBadPrivateKey
	}
	address := ethcrypto.PubkeyToAddress(priv.PublicKey).Hex()

	encrypted, err := crypto.Encrypt(keyHex, s.masterKey)
	if err != nil {
		return nil, err
	}

	record := &models.WalletRecord{
		Address:      address,
		Label:        label,
		EncryptedKey: encrypted,
	}
	if err := s.repo.Create(record); err != nil {
		return nil, err
	}
	s.log.Info("wallet imported", utils.User(address))
	return record, nil
}

// Get возвращает кошелёк по адресу (ключ остаётся зашифрованным)
func (s *WalletService) Get(address string) (*models.WalletRecord, error) {
	return s.repo.GetByAddress(address)
}

// Default возвращает кошелёк по умолчанию
func (s *WalletService) Default() (*models.WalletRecord, error) {
	record, err := s.repo.GetDefault()
	if err != nil {
		return nil, ErrNoWallets
	}
	return record, nil
}

// SetDefault назначает кошелёк по умолчанию
func (s *WalletService) SetDefault(address string) error {
	return s.repo.SetDefault(address)
}

// PrivateKeyHex расшифровывает ключ кошелька для подписи.
// Возвращённую строку нельзя журналировать и держать дольше необходимого.
func (s *WalletService) PrivateKeyHex(address string) (string, error) {
	record, err := s.repo.GetByAddress(address)
	if err != nil {
		return "", err
	}
	return crypto.Decrypt(record.EncryptedKey, s.masterKey)
}
