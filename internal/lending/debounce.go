package lending

import (
	"sync"
	"time"
)

// Debouncer откладывает реакцию на ввод пользователя
//
// Пока пользователь печатает сумму, перепроверять allowance и дёргать
// проекцию на каждый символ бессмысленно и опасно: можно отправить
// транзакцию против проверки allowance для устаревшей суммы. Пока окно
// не истекло, Pending() = true и кнопка отправки должна быть заблокирована.
//
// Потокобезопасен. Повторный Trigger сбрасывает таймер.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
}

// DefaultDebounceWindow - окно по умолчанию для ввода суммы
const DefaultDebounceWindow = 500 * time.Millisecond

// NewDebouncer создаёт debouncer с указанным окном.
// window <= 0 заменяется на DefaultDebounceWindow.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window}
}

// Trigger планирует вызов fn после окна тишины.
// Предыдущий незавершённый вызов отменяется.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = true
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		d.pending = false
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

// Pending возвращает true пока окно тишины не истекло.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop отменяет отложенный вызов и запрещает новые.
// Вызывается при teardown владельца.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
