package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/chain"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/lending"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/marketmath"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Ошибки транзакционного сервиса
var (
	ErrUnknownAction = errors.New("unknown market action")
	ErrNoCoordinator = errors.New("no active coordinator for this action")
)

// TxServiceConfig - параметры транзакционного сервиса
type TxServiceConfig struct {
	// Morpho - адрес контракта протокола
	Morpho common.Address
	// Owner - адрес активного кошелька (владелец всех отправок)
	Owner common.Address
	// DebounceWindow передаётся каждому координатору
	DebounceWindow time.Duration
	// SubmitTimeout ограничивает полный цикл approve → act → confirm
	SubmitTimeout time.Duration
}

// coordEntry - координатор вместе с контекстом его рынка
type coordEntry struct {
	coord    *lending.Coordinator
	asset    common.Address
	decimals int

	mu       sync.Mutex
	recordID int // журнальная запись текущей отправки, 0 если нет
}

// TxService управляет охраняемыми транзакциями пользователя
//
// На каждую тройку (пользователь, рынок, действие) живёт ровно один
// координатор: параллельные отправки одного действия по одному рынку
// протоколом не поддерживаются. Каждая отправка журналируется в БД и
// транслируется в WebSocket по мере смены фаз.
type TxService struct {
	cfg    TxServiceConfig
	reader chain.Reader
	writer chain.Writer
	txRepo TxRepositoryInterface
	market MarketRepositoryInterface

	broadcaster Broadcaster
	log         *utils.Logger

	mu      sync.Mutex
	entries map[string]*coordEntry
}

// NewTxService создает новый экземпляр транзакционного сервиса
func NewTxService(
	cfg TxServiceConfig,
	reader chain.Reader,
	writer chain.Writer,
	txRepo TxRepositoryInterface,
	marketRepo MarketRepositoryInterface,
	log *utils.Logger,
) *TxService {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Minute
	}
	if log == nil {
		log = utils.L()
	}
	return &TxService{
		cfg:     cfg,
		reader:  reader,
		writer:  writer,
		txRepo:  txRepo,
		market:  marketRepo,
		log:     log.WithComponent("tx"),
		entries: make(map[string]*coordEntry),
	}
}

// SetBroadcaster устанавливает рассыльщика WebSocket событий
func (s *TxService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func entryKey(user, marketKey string, action models.Action) string {
	return user + "|" + marketKey + "|" + string(action)
}

// entry возвращает координатор для тройки (user, market, action),
// создавая его при первом обращении.
func (s *TxService) entry(ctx context.Context, user, marketKey string, action models.Action) (*coordEntry, error) {
	if !action.Valid() {
		return nil, ErrUnknownAction
	}
	if !common.IsHexAddress(user) {
		return nil, ErrBadAddress
	}
	key := entryKey(user, marketKey, action)

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	listing, err := s.market.GetByKey(marketKey)
	if err != nil {
		return nil, ErrMarketUnknown
	}
	params, err := listing.ToParams()
	if err != nil {
		return nil, err
	}

	owner := common.HexToAddress(user)
	asset := spendableAsset(action, params)
	decimals := 18
	if asset != (common.Address{}) {
		decimals, err = s.reader.Decimals(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("reading decimals of %s: %w", asset.Hex(), err)
		}
	}

	e := &coordEntry{asset: asset, decimals: decimals}
	cfg := lending.CoordinatorConfig{
		Action: action,
		Market: params,
		Owner:  owner,
		Morpho: s.cfg.Morpho,
		Asset:  asset,
		// Только supply collateral цепляет действие сразу за approve,
		// остальные потоки ждут повторного подтверждения. Асимметрия
		// намеренная, продуктовая.
		AutoChainAfterApproval: action == models.ActionSupplyCollateral,
		DebounceWindow:         s.cfg.DebounceWindow,
		Ceiling:                s.ceilingFunc(action, owner, params, asset),
		OnUpdate: func(l models.TransactionLifecycle) {
			s.onLifecycle(e, user, marketKey, action, l)
		},
		OnSuccess: func() {
			s.broadcastPosition(user, marketKey, owner, params)
		},
	}
	coord, err := lending.NewCoordinator(cfg, s.reader, s.writer)
	if err != nil {
		return nil, err
	}
	e.coord = coord

	s.mu.Lock()
	// проверка гонки: другая горутина могла создать координатор раньше
	if prev, ok := s.entries[key]; ok {
		s.mu.Unlock()
		coord.Stop()
		return prev, nil
	}
	s.entries[key] = e
	lending.UpdateActiveCoordinators(int64(len(s.entries)))
	s.mu.Unlock()
	return e, nil
}

// spendableAsset возвращает токен, который действие спишет с кошелька.
// Для действий без approve возвращает нулевой адрес.
func spendableAsset(action models.Action, params models.MarketParams) common.Address {
	switch action {
	case models.ActionSupply, models.ActionRepay:
		return params.LoanToken
	case models.ActionSupplyCollateral:
		return params.CollateralToken
	}
	return common.Address{}
}

// ceilingFunc возвращает потолок суммы, выше которого отправка
// блокируется на уровне CanSubmit.
func (s *TxService) ceilingFunc(action models.Action, owner common.Address, params models.MarketParams, asset common.Address) func(ctx context.Context) (*big.Int, error) {
	switch action {
	case models.ActionSupply, models.ActionSupplyCollateral:
		return func(ctx context.Context) (*big.Int, error) {
			return s.reader.Balance(ctx, asset, owner)
		}
	case models.ActionRepay:
		return func(ctx context.Context) (*big.Int, error) {
			market, position, err := s.freshPosition(ctx, owner, params)
			if err != nil {
				return nil, err
			}
			return lending.QuoteMaxRepay(market, position).AssetsCeil, nil
		}
	case models.ActionBorrow:
		return func(ctx context.Context) (*big.Int, error) {
			market, position, err := s.freshPosition(ctx, owner, params)
			if err != nil {
				return nil, err
			}
			return marketmath.MaxBorrowableAssets(market, position), nil
		}
	case models.ActionWithdraw:
		return func(ctx context.Context) (*big.Int, error) {
			market, position, err := s.freshPosition(ctx, owner, params)
			if err != nil {
				return nil, err
			}
			return marketmath.SupplyAssetsDown(market, position.SupplyShares), nil
		}
	case models.ActionWithdrawCollateral:
		return func(ctx context.Context) (*big.Int, error) {
			market, position, err := s.freshPosition(ctx, owner, params)
			if err != nil {
				return nil, err
			}
			return marketmath.WithdrawableCollateral(market, position), nil
		}
	}
	return nil
}

func (s *TxService) freshPosition(ctx context.Context, owner common.Address, params models.MarketParams) (*models.MarketState, *models.Position, error) {
	market, err := s.reader.Market(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	position, err := s.reader.Position(ctx, owner, params.ID())
	if err != nil {
		return nil, nil, err
	}
	return marketmath.AccrueInterest(market, time.Now().Unix()), position, nil
}

// broadcastPosition пересчитывает позицию после подтверждённого действия
// и рассылает её WebSocket подписчикам.
func (s *TxService) broadcastPosition(user, marketKey string, owner common.Address, params models.MarketParams) {
	if s.broadcaster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	market, position, err := s.freshPosition(ctx, owner, params)
	if err != nil {
		s.log.Warn("position refetch after confirm failed",
			utils.User(user), utils.Market(marketKey), zap.Error(err))
		return
	}
	s.broadcaster.BroadcastPositionUpdate(user, marketKey, marketmath.Derive(market, position))
}

// onLifecycle журналирует смену фазы и транслирует её наблюдателям
func (s *TxService) onLifecycle(e *coordEntry, user, marketKey string, action models.Action, l models.TransactionLifecycle) {
	e.mu.Lock()
	recordID := e.recordID
	e.mu.Unlock()
	if recordID == 0 {
		return
	}

	txHash := ""
	if l.TxHash != (common.Hash{}) {
		txHash = l.TxHash.Hex()
	}
	errMsg := ""
	if l.Err != nil {
		errMsg = l.Err.Error()
	}
	if err := s.txRepo.UpdatePhase(recordID, l.Phase, txHash, errMsg); err != nil {
		s.log.Error("tx journal update failed",
			zap.Int("record_id", recordID), zap.Error(err))
	}

	s.log.Info("transaction phase",
		utils.User(user), utils.Market(marketKey),
		utils.Action(string(action)), utils.Phase(l.Phase),
		utils.TxHash(txHash))

	if s.broadcaster != nil {
		record, err := s.txRepo.GetByID(recordID)
		if err == nil {
			s.broadcaster.BroadcastTxUpdate(record)
		}
	}

	// терминальная фаза - запись закрыта, следующая отправка откроет новую
	if l.IsCompleted() {
		e.mu.Lock()
		if e.recordID == recordID {
			e.recordID = 0
		}
		e.mu.Unlock()
	}
}

// ============================================================
// Операции, вызываемые HTTP-слоем
// ============================================================

// SetAmount устанавливает сумму действия (в человеко-читаемых единицах)
func (s *TxService) SetAmount(ctx context.Context, user, marketKey string, action models.Action, raw string) error {
	e, err := s.entry(ctx, user, marketKey, action)
	if err != nil {
		return err
	}
	return e.coord.SetAmount(raw, e.decimals)
}

// SetMaxRepay устанавливает полное погашение долга (отправка в shares)
func (s *TxService) SetMaxRepay(ctx context.Context, user, marketKey string) error {
	e, err := s.entry(ctx, user, marketKey, models.ActionRepay)
	if err != nil {
		return err
	}
	listing, err := s.market.GetByKey(marketKey)
	if err != nil {
		return ErrMarketUnknown
	}
	params, err := listing.ToParams()
	if err != nil {
		return err
	}
	market, position, err := s.freshPosition(ctx, common.HexToAddress(user), params)
	if err != nil {
		return err
	}
	e.coord.SetMax(lending.QuoteMaxRepay(market, position))
	return nil
}

// ClearAmount сбрасывает введённую сумму
func (s *TxService) ClearAmount(ctx context.Context, user, marketKey string, action models.Action) error {
	e, err := s.entry(ctx, user, marketKey, action)
	if err != nil {
		return err
	}
	e.coord.ClearAmount()
	return nil
}

// CanSubmit сообщает, пройдёт ли отправка проверки прямо сейчас
func (s *TxService) CanSubmit(ctx context.Context, user, marketKey string, action models.Action) (bool, error) {
	e, err := s.entry(ctx, user, marketKey, action)
	if err != nil {
		return false, err
	}
	return e.coord.CanSubmit(ctx), nil
}

// Lifecycle возвращает состояние текущей операции
func (s *TxService) Lifecycle(ctx context.Context, user, marketKey string, action models.Action) (models.TransactionLifecycle, error) {
	e, err := s.entry(ctx, user, marketKey, action)
	if err != nil {
		return models.TransactionLifecycle{}, err
	}
	return e.coord.Lifecycle(), nil
}

// Submit запускает охраняемый цикл approve → act для текущей суммы.
//
// Возвращает ID журнальной записи сразу; сам цикл выполняется в фоне,
// его ход наблюдается через WebSocket или GetHistory.
func (s *TxService) Submit(ctx context.Context, user, marketKey string, action models.Action) (int, error) {
	e, err := s.entry(ctx, user, marketKey, action)
	if err != nil {
		return 0, err
	}
	if !e.coord.CanSubmit(ctx) {
		return 0, lending.ErrNotSubmittable
	}

	assets, shares, isShares := e.coord.Amount()
	record := &models.TxRecord{
		User:      user,
		MarketKey: marketKey,
		Action:    action,
		Assets:    bigString(assets),
		Shares:    bigString(shares),
		IsShares:  isShares,
		Phase:     e.coord.Lifecycle().Phase,
	}
	if err := s.txRepo.Create(record); err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.recordID = record.ID
	e.mu.Unlock()

	go func() {
		submitCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SubmitTimeout)
		defer cancel()
		if err := e.coord.Submit(submitCtx); err != nil {
			s.log.Error("submit failed",
				utils.User(user), utils.Market(marketKey),
				utils.Action(string(action)), zap.Error(err))
		}
	}()
	return record.ID, nil
}

// Reset возвращает операцию из терминальной фазы в Idle
func (s *TxService) Reset(user, marketKey string, action models.Action) error {
	key := entryKey(user, marketKey, action)
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return ErrNoCoordinator
	}
	return e.coord.Reset()
}

// GetHistory возвращает журнал транзакций пользователя
func (s *TxService) GetHistory(user string, limit int) ([]*models.TxRecord, error) {
	if !common.IsHexAddress(user) {
		return nil, ErrBadAddress
	}
	return s.txRepo.GetByUser(user, limit)
}

// GetPending возвращает транзакции, застрявшие в нефинальных фазах
// (используется при старте для диагностики оборванных отправок)
func (s *TxService) GetPending() ([]*models.TxRecord, error) {
	return s.txRepo.GetPending()
}

// Stop останавливает все координаторы
func (s *TxService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.coord.Stop()
	}
	s.entries = make(map[string]*coordEntry)
	lending.UpdateActiveCoordinators(0)
}

func bigString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}
