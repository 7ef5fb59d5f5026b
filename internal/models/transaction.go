package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Фазы жизненного цикла охраняемой транзакции
//
// Idle → Approving → Acting → Confirmed, с отказом на любом из двух
// шагов записи. Из Failed и Confirmed выход только через явный Reset.
const (
	PhaseIdle      = "IDLE"
	PhaseApproving = "APPROVING"
	PhaseActing    = "ACTING"
	PhaseConfirmed = "CONFIRMED"
	PhaseFailed    = "FAILED"
)

// Шаги, к которым привязывается ошибка (чтобы UI знал, какая половина
// двухшагового потока упала)
const (
	StepApprove = "approve"
	StepAction  = "action"
)

// Action - тип операции с рынком
type Action string

const (
	ActionSupply             Action = "supply"
	ActionSupplyCollateral   Action = "supply_collateral"
	ActionBorrow             Action = "borrow"
	ActionRepay              Action = "repay"
	ActionWithdraw           Action = "withdraw"
	ActionWithdrawCollateral Action = "withdraw_collateral"
)

// Valid проверяет, что action известен.
func (a Action) Valid() bool {
	switch a {
	case ActionSupply, ActionSupplyCollateral, ActionBorrow,
		ActionRepay, ActionWithdraw, ActionWithdrawCollateral:
		return true
	}
	return false
}

// NeedsApproval возвращает true для операций, которые переводят токены
// пользователя в протокол и потому требуют ERC-20 allowance.
// Borrow и withdraw отдают средства пользователю - approve не нужен.
func (a Action) NeedsApproval() bool {
	switch a {
	case ActionSupply, ActionSupplyCollateral, ActionRepay:
		return true
	}
	return false
}

// TxError - ошибка одного из шагов транзакции
type TxError struct {
	Step    string `json:"step"` // approve | action
	Message string `json:"message"`
}

func (e *TxError) Error() string {
	if e == nil {
		return ""
	}
	return e.Step + ": " + e.Message
}

// TransactionLifecycle - состояние одной охраняемой операции
//
// Принадлежит ровно одному координатору; один экземпляр нельзя делить
// между параллельными действиями пользователя по одному активу.
type TransactionLifecycle struct {
	Phase   string      `json:"phase"`
	TxHash  common.Hash `json:"tx_hash,omitempty"`
	Err     *TxError    `json:"error,omitempty"`
	Updated time.Time   `json:"updated"`
}

// IsCompleted возвращает true если операция дошла до терминальной фазы.
func (l TransactionLifecycle) IsCompleted() bool {
	return l.Phase == PhaseConfirmed || l.Phase == PhaseFailed
}

// TxRecord - запись о транзакции в журнале (таблица transactions)
type TxRecord struct {
	ID        int        `json:"id" db:"id"`
	User      string     `json:"user" db:"user_address"`
	MarketKey string     `json:"market_key" db:"market_key"` // hex MarketID
	Action    Action     `json:"action" db:"action"`
	Assets    string     `json:"assets" db:"assets"` // базовые единицы, как строка
	Shares    string     `json:"shares" db:"shares"` // для isShares-отправок
	IsShares  bool       `json:"is_shares" db:"is_shares"`
	Phase     string     `json:"phase" db:"phase"`
	TxHash    string     `json:"tx_hash" db:"tx_hash"`
	ErrorMsg  string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}
