package lending

import (
	"fmt"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// ValidTransitions определяет допустимые переходы фаз охраняемой транзакции
//
// Approving → Idle происходит когда approve подтверждён, но авто-переход
// к действию выключен: пользователь должен подтвердить второй шаг сам.
// Idle → Failed происходит при ошибке шлюза ещё до первого перехода:
// чтение allowance идёт до входа в Approving.
var ValidTransitions = map[string][]string{
	models.PhaseIdle:      {models.PhaseApproving, models.PhaseActing, models.PhaseFailed},
	models.PhaseApproving: {models.PhaseActing, models.PhaseIdle, models.PhaseFailed},
	models.PhaseActing:    {models.PhaseConfirmed, models.PhaseFailed},
	models.PhaseConfirmed: {models.PhaseIdle}, // только явный reset
	models.PhaseFailed:    {models.PhaseIdle}, // только явный reset
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// PhaseTransitionError - ошибка недопустимого перехода фаз
type PhaseTransitionError struct {
	From string
	To   string
}

func (e *PhaseTransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition %s -> %s", e.From, e.To)
}

// TryTransition выполняет переход, если он допустим.
// При недопустимом переходе lifecycle не меняется.
func TryTransition(l *models.TransactionLifecycle, to string) error {
	if !CanTransition(l.Phase, to) {
		return &PhaseTransitionError{From: l.Phase, To: to}
	}
	l.Phase = to
	l.Updated = time.Now()
	return nil
}

// PhaseInfo возвращает описание фазы для UI
func PhaseInfo(phase string) string {
	switch phase {
	case models.PhaseIdle:
		return "Ожидание действия"
	case models.PhaseApproving:
		return "Approve токена..."
	case models.PhaseActing:
		return "Отправка транзакции..."
	case models.PhaseConfirmed:
		return "Транзакция подтверждена"
	case models.PhaseFailed:
		return "Ошибка! Повторите операцию"
	default:
		return "Неизвестная фаза"
	}
}

// IsBusy возвращает true если по координатору идёт запись on-chain
func IsBusy(phase string) bool {
	return phase == models.PhaseApproving || phase == models.PhaseActing
}
