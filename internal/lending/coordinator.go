package lending

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/chain"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// Coordinator - машина состояний одной охраняемой операции approve → act
//
// Каждый write-поток (supply, borrow, repay, withdraw, ...) проходит через
// один и тот же цикл: проверить allowance → при необходимости approve →
// выполнить действие → подтверждение. Координатор собирает этот цикл в
// одном месте, параметризуясь типом действия, источником потолка суммы и
// флагом автоперехода после approve.
//
// Гарантии:
//   - шаги строго последовательны: Acting не начинается, пока Approving
//     не завершился (Confirmed или Failed)
//   - approve выдаётся ровно на нормализованную сумму отправки, не unlimited
//   - проверка достаточности allowance и сумма отправки исходят из одного
//     результата нормализации (см. amount.go)
//   - allowance перечитывается непосредственно перед каждым write: два
//     координатора на одной паре (asset, spender) могут гоняться, но
//     каждый решает по свежему чтению. Сериализуемость не гарантируется
//     и не требуется
//   - уведомления OnUpdate доставляются строго в порядке переходов:
//     наблюдатель никогда не увидит раннюю фазу после терминальной
//
// Один экземпляр обслуживает ровно одно действие одного пользователя;
// делить его между параллельными операциями нельзя.
type Coordinator struct {
	cfg    CoordinatorConfig
	reader chain.Reader
	writer chain.Writer

	mu        sync.Mutex
	lifecycle models.TransactionLifecycle
	amount    *big.Int // нормализованная сумма отправки (assets)
	shares    *big.Int // аргумент отправки в isShares-режиме
	isShares  bool
	checking  bool // идёт перепроверка allowance после дебаунса

	debounce *Debouncer

	// очередь снимков lifecycle для OnUpdate; разгребается одной горутиной
	notifyQueue []models.TransactionLifecycle
	notifyWake  chan struct{}
	notifyDone  chan struct{}
	stopOnce    sync.Once
}

// CoordinatorConfig - параметры одного действия
type CoordinatorConfig struct {
	Action models.Action
	Market models.MarketParams

	// Owner - владелец средств и получатель результата
	Owner common.Address
	// Morpho - адрес контракта протокола (он же spender для approve)
	Morpho common.Address
	// Asset - токен, который будет потрачен (loan или collateral token);
	// не используется для действий без approve
	Asset common.Address

	// AutoChainAfterApproval - переходить к действию сразу после
	// подтверждения approve. Включён только для supply collateral;
	// остальные потоки ждут повторного подтверждения пользователя.
	// Расхождение намеренное, продуктовое - не "чинить" на уровне кода.
	AutoChainAfterApproval bool

	DebounceWindow time.Duration

	// Ceiling возвращает потолок суммы для данного действия:
	// баланс кошелька для supply, остаток долга для repay,
	// выводимый collateral для withdraw. Поставляется вызывающим.
	Ceiling func(ctx context.Context) (*big.Int, error)

	// OnSuccess вызывается после подтверждения действия
	// (вызывающие обычно перезапрашивают позицию)
	OnSuccess func()

	// OnDelta уведомляет родителя об актуальной сумме после дебаунса -
	// для live-проекции будущей позиции
	OnDelta func(amount *big.Int)

	// OnUpdate - наблюдатель изменений lifecycle (broadcast в WebSocket)
	OnUpdate func(l models.TransactionLifecycle)
}

// Ошибки координатора
var (
	ErrCoordinatorBusy = errors.New("coordinator is busy: transaction in flight")
	ErrNotSubmittable  = errors.New("amount is not submittable")
	ErrUnknownAction   = errors.New("unknown action")
)

// NewCoordinator создаёт координатор в фазе Idle.
func NewCoordinator(cfg CoordinatorConfig, reader chain.Reader, writer chain.Writer) (*Coordinator, error) {
	if !cfg.Action.Valid() {
		return nil, ErrUnknownAction
	}
	c := &Coordinator{
		cfg:        cfg,
		reader:     reader,
		writer:     writer,
		lifecycle:  models.TransactionLifecycle{Phase: models.PhaseIdle, Updated: time.Now()},
		debounce:   NewDebouncer(cfg.DebounceWindow),
		notifyWake: make(chan struct{}, 1),
		notifyDone: make(chan struct{}),
	}
	if cfg.OnUpdate != nil {
		go c.notifyLoop()
	}
	return c, nil
}

// ============================================================
// Ввод суммы
// ============================================================

// SetAmount принимает сырую десятичную строку пользователя.
//
// Сумма нормализуется ровно один раз; перепроверка allowance и
// уведомление родителя о дельте откладываются на окно дебаунса.
// Пока окно не истекло, Checking() = true и CanSubmit() = false.
func (c *Coordinator) SetAmount(raw string, decimals int) error {
	amount, err := NormalizeAmount(raw, decimals)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.amount = amount
	c.shares = nil
	c.isShares = false
	c.checking = true
	c.mu.Unlock()

	c.debounce.Trigger(func() {
		c.mu.Lock()
		c.checking = false
		amt := c.amount
		c.mu.Unlock()
		if c.cfg.OnDelta != nil {
			c.cfg.OnDelta(amt)
		}
	})
	return nil
}

// SetMax переводит координатор в shares-режим полного погашения/вывода.
//
// Отправляться будет аргумент shares (assets = 0); AssetsCeil из
// котировки используется только для проверки allowance и потолка.
func (c *Coordinator) SetMax(quote MaxRepayQuote) {
	c.mu.Lock()
	c.amount = quote.AssetsCeil
	c.shares = quote.Shares
	c.isShares = true
	c.checking = true
	c.mu.Unlock()

	c.debounce.Trigger(func() {
		c.mu.Lock()
		c.checking = false
		amt := c.amount
		c.mu.Unlock()
		if c.cfg.OnDelta != nil {
			c.cfg.OnDelta(amt)
		}
	})
}

// ClearAmount сбрасывает введённую сумму (смена вкладки и т.п.).
func (c *Coordinator) ClearAmount() {
	c.mu.Lock()
	c.amount = nil
	c.shares = nil
	c.isShares = false
	c.mu.Unlock()
}

// ============================================================
// Предикаты для UI
// ============================================================

// CanSubmit сообщает, может ли кнопка отправки быть активной.
//
// Валидация push-модельная: невалидная сумма не порождает ошибку,
// просто кнопка остаётся заблокированной.
func (c *Coordinator) CanSubmit(ctx context.Context) bool {
	_, err := c.snapshotSubmittable(ctx)
	return err == nil
}

// Checking возвращает true пока идёт дебаунс или перепроверка allowance.
func (c *Coordinator) Checking() bool {
	c.mu.Lock()
	checking := c.checking
	c.mu.Unlock()
	return checking || c.debounce.Pending()
}

// Lifecycle возвращает копию текущего состояния транзакции.
func (c *Coordinator) Lifecycle() models.TransactionLifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifecycle
}

// Amount возвращает подготовленные аргументы отправки.
// Копии: вызывающий не может повлиять на состояние координатора.
func (c *Coordinator) Amount() (assets, shares *big.Int, isShares bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.amount != nil {
		assets = new(big.Int).Set(c.amount)
	}
	if c.shares != nil {
		shares = new(big.Int).Set(c.shares)
	}
	return assets, shares, c.isShares
}

// ============================================================
// Отправка
// ============================================================

// submission - аргументы отправки, снятые одним захватом блокировки
type submission struct {
	amount   *big.Int
	shares   *big.Int
	isShares bool
}

// snapshotSubmittable атомарно снимает аргументы отправки и валидирует
// именно их: сумма, прошедшая проверку потолка, и сумма, которая уйдёт
// on-chain - одно и то же значение. Конкурентный SetAmount между
// проверкой и отправкой не подменит её.
func (c *Coordinator) snapshotSubmittable(ctx context.Context) (submission, error) {
	c.mu.Lock()
	if IsBusy(c.lifecycle.Phase) {
		c.mu.Unlock()
		return submission{}, ErrCoordinatorBusy
	}
	if c.checking || c.amount == nil || c.amount.Sign() <= 0 {
		c.mu.Unlock()
		return submission{}, ErrNotSubmittable
	}
	sub := submission{amount: c.amount, shares: c.shares, isShares: c.isShares}
	c.mu.Unlock()

	if c.debounce.Pending() {
		return submission{}, ErrNotSubmittable
	}
	if c.cfg.Ceiling != nil {
		ceiling, err := c.cfg.Ceiling(ctx)
		if err != nil || ceiling == nil || sub.amount.Cmp(ceiling) > 0 {
			return submission{}, ErrNotSubmittable
		}
	}
	return sub, nil
}

// Submit выполняет охраняемый цикл approve → act.
//
// Блокирует вызывающую горутину до терминальной фазы шага (вызывающие
// оборачивают в горутину и наблюдают через OnUpdate). Если approve
// потребовался и AutoChainAfterApproval выключен, Submit возвращается
// после подтверждения approve с фазой Idle - действие уйдёт со второго
// вызова Submit, уже без approve (allowance будет достаточным).
func (c *Coordinator) Submit(ctx context.Context) error {
	sub, err := c.snapshotSubmittable(ctx)
	if err != nil {
		return err
	}

	if c.cfg.Action.NeedsApproval() {
		proceed, err := c.ensureAllowance(ctx, sub.amount)
		if err != nil {
			return err
		}
		if !proceed {
			// approve подтверждён, авто-переход выключен:
			// ждём повторного подтверждения пользователя
			return nil
		}
	}

	return c.act(ctx, sub.amount, sub.shares, sub.isShares)
}

// ensureAllowance перечитывает allowance и при нехватке выполняет approve.
//
// Возвращает (true, nil) если можно переходить к действию сейчас,
// (false, nil) если approve подтверждён, но нужен второй клик.
func (c *Coordinator) ensureAllowance(ctx context.Context, amount *big.Int) (bool, error) {
	// Свежее чтение непосредственно перед решением - кэш через гонку
	// с другим координатором недопустим
	allowance, err := c.reader.Allowance(ctx, c.cfg.Asset, c.cfg.Owner, c.cfg.Morpho)
	if err != nil {
		return false, c.fail(models.StepApprove, err)
	}

	if allowance.Cmp(amount) >= 0 {
		RecordApproval(string(c.cfg.Action), "skipped")
		return true, nil
	}

	if err := c.transition(models.PhaseApproving); err != nil {
		return false, err
	}

	// Approve ровно на сумму отправки: least-privilege, не uint256.max
	data, err := chain.PackApprove(c.cfg.Morpho, amount)
	if err != nil {
		return false, c.fail(models.StepApprove, err)
	}

	start := time.Now()
	hash, err := c.writer.Submit(ctx, chain.Call{To: c.cfg.Asset, Data: data})
	if err != nil {
		return false, c.fail(models.StepApprove, err)
	}
	c.setHash(hash)

	if err := c.writer.AwaitConfirmation(ctx, hash); err != nil {
		return false, c.fail(models.StepApprove, err)
	}
	RecordConfirmLatency(string(c.cfg.Action), models.StepApprove, time.Since(start))
	RecordApproval(string(c.cfg.Action), "granted")

	// Перечитываем allowance после подтверждения: следующий Submit
	// увидит его достаточным и пропустит approve
	if _, err := c.reader.Allowance(ctx, c.cfg.Asset, c.cfg.Owner, c.cfg.Morpho); err != nil {
		return false, c.fail(models.StepApprove, err)
	}

	if !c.cfg.AutoChainAfterApproval {
		if err := c.transition(models.PhaseIdle); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// act выполняет основной шаг действия.
func (c *Coordinator) act(ctx context.Context, amount, shares *big.Int, isShares bool) error {
	if err := c.transition(models.PhaseActing); err != nil {
		return err
	}

	data, err := c.packAction(amount, shares, isShares)
	if err != nil {
		return c.fail(models.StepAction, err)
	}

	start := time.Now()
	hash, err := c.writer.Submit(ctx, chain.Call{To: c.cfg.Morpho, Data: data})
	if err != nil {
		return c.fail(models.StepAction, err)
	}
	c.setHash(hash)

	if err := c.writer.AwaitConfirmation(ctx, hash); err != nil {
		return c.fail(models.StepAction, err)
	}
	RecordConfirmLatency(string(c.cfg.Action), models.StepAction, time.Since(start))
	RecordTransaction(string(c.cfg.Action), "confirmed")

	// Сумма очищается только после подтверждения действия, не раньше
	c.mu.Lock()
	c.amount = nil
	c.shares = nil
	c.isShares = false
	c.mu.Unlock()

	if err := c.transition(models.PhaseConfirmed); err != nil {
		return err
	}
	if c.cfg.OnSuccess != nil {
		c.cfg.OnSuccess()
	}
	return nil
}

// packAction собирает calldata действия.
//
// В isShares-режиме (Max) аргумент assets = 0, отправляется shares -
// см. QuoteMaxRepay.
func (c *Coordinator) packAction(amount, shares *big.Int, isShares bool) ([]byte, error) {
	assets, sh := amount, (*big.Int)(nil)
	if isShares {
		assets, sh = nil, shares
	}

	switch c.cfg.Action {
	case models.ActionSupply:
		return chain.PackSupply(c.cfg.Market, assets, sh, c.cfg.Owner)
	case models.ActionSupplyCollateral:
		return chain.PackSupplyCollateral(c.cfg.Market, amount, c.cfg.Owner)
	case models.ActionBorrow:
		return chain.PackBorrow(c.cfg.Market, assets, sh, c.cfg.Owner, c.cfg.Owner)
	case models.ActionRepay:
		return chain.PackRepay(c.cfg.Market, assets, sh, c.cfg.Owner)
	case models.ActionWithdraw:
		return chain.PackWithdraw(c.cfg.Market, assets, sh, c.cfg.Owner, c.cfg.Owner)
	case models.ActionWithdrawCollateral:
		return chain.PackWithdrawCollateral(c.cfg.Market, amount, c.cfg.Owner, c.cfg.Owner)
	default:
		return nil, ErrUnknownAction
	}
}

// Reset возвращает координатор в Idle из терминальной фазы.
//
// Локальная операция: уже разосланная транзакция живёт своей жизнью,
// reset её не отменяет.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := TryTransition(&c.lifecycle, models.PhaseIdle); err != nil {
		return err
	}
	c.lifecycle.Err = nil
	c.lifecycle.TxHash = common.Hash{}
	c.notifyLocked()
	return nil
}

// Stop прекращает наблюдение (teardown владельца).
func (c *Coordinator) Stop() {
	c.debounce.Stop()
	c.stopOnce.Do(func() { close(c.notifyDone) })
}

// ============================================================
// Внутреннее
// ============================================================

func (c *Coordinator) transition(to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := TryTransition(&c.lifecycle, to); err != nil {
		return err
	}
	c.notifyLocked()
	return nil
}

func (c *Coordinator) setHash(hash common.Hash) {
	c.mu.Lock()
	c.lifecycle.TxHash = hash
	c.lifecycle.Updated = time.Now()
	c.notifyLocked()
	c.mu.Unlock()
}

// fail переводит координатор в Failed, не различая отказ кошелька и
// revert on-chain - обе ошибки равнозначны для машины состояний,
// подробности остаются в сообщении для UI.
func (c *Coordinator) fail(step string, cause error) error {
	c.mu.Lock()
	txErr := &models.TxError{Step: step, Message: cause.Error()}
	c.lifecycle.Phase = models.PhaseFailed
	c.lifecycle.Err = txErr
	c.lifecycle.Updated = time.Now()
	c.notifyLocked()
	c.mu.Unlock()

	RecordTransaction(string(c.cfg.Action), "failed")
	return txErr
}

// notifyLocked ставит копию lifecycle в очередь доставки. Вызывается под mu;
// доставкой занимается единственная горутина notifyLoop, поэтому наблюдатель
// получает переходы строго в порядке их совершения и не может заблокировать
// координатор.
func (c *Coordinator) notifyLocked() {
	if c.cfg.OnUpdate == nil {
		return
	}
	c.notifyQueue = append(c.notifyQueue, c.lifecycle)
	select {
	case c.notifyWake <- struct{}{}:
	default:
	}
}

// notifyLoop доставляет снимки lifecycle по одному, в порядке постановки.
func (c *Coordinator) notifyLoop() {
	for {
		select {
		case <-c.notifyDone:
			return
		case <-c.notifyWake:
		}
		for {
			c.mu.Lock()
			if len(c.notifyQueue) == 0 {
				c.mu.Unlock()
				break
			}
			snapshot := c.notifyQueue[0]
			c.notifyQueue = c.notifyQueue[1:]
			c.mu.Unlock()
			c.cfg.OnUpdate(snapshot)
		}
	}
}
