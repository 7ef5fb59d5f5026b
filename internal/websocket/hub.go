package websocket

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// ============ ОПТИМИЗАЦИЯ: sync.Pool для JSON буферов ============
// Убирает аллокации при каждом Broadcast

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512)) // начальный размер 512 байт
	},
}

// ============ Типизированные сообщения (без map[string]interface{}) ============
// Избегаем рефлексии при сериализации - Go оптимизирует для известных типов

// TxUpdateMessage - смена фазы охраняемой транзакции
type TxUpdateMessage struct {
	Type string           `json:"type"`
	Data *models.TxRecord `json:"data"`
}

// CatalogUpdateMessage - каталог рынков обновлён
type CatalogUpdateMessage struct {
	Type    string `json:"type"`
	Markets int    `json:"markets"`
	Vaults  int    `json:"vaults"`
}

// PositionUpdateMessage - позиция пользователя пересчитана
type PositionUpdateMessage struct {
	Type      string      `json:"type"`
	User      string      `json:"user"`
	MarketKey string      `json:"market_key"`
	Data      interface{} `json:"data"`
}

// NotificationMessage - произвольное уведомление для UI
type NotificationMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для broadcast сообщений всем подключенным клиентам.
// Обеспечивает real-time обновления данных на frontend без необходимости polling.
//
// Типы сообщений:
// - txUpdate: смена фазы транзакции (approve/действие/подтверждение/ошибка)
// - catalogUpdate: каталог рынков и vault'ов перевыгружен
// - positionUpdate: позиция пользователя пересчитана после подтверждения
// - notification: произвольное уведомление
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.Broadcast(message)
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("Client connected. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("Client disconnected. Total clients: %d", len(h.clients))

		case message := <-h.broadcast:
			// копируем список клиентов под коротким RLock
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			// Отправляем сообщения БЕЗ блокировки (не блокируем register/unregister)
			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
					// Сообщение отправлено успешно
				default:
					// Клиент не успевает обрабатывать сообщения - помечаем для удаления
					toRemove = append(toRemove, client)
				}
			}

			// Удаляем медленных клиентов под Write Lock
			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				log.Printf("Removed %d slow clients. Total clients: %d", len(toRemove), len(h.clients))
			}
		}
	}
}

// Broadcast отправляет сообщение всем подключенным клиентам
// Использует sync.Pool для буферов (убирает аллокации)
func (h *Hub) Broadcast(message interface{}) {
	// Получаем буфер из пула
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	// Сериализуем в буфер
	if err := json.NewEncoder(buf).Encode(message); err != nil {
		log.Printf("Error marshaling broadcast message: %v", err)
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копируем данные (буфер вернётся в пул)
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)

	// Возвращаем буфер в пул
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

// BroadcastTxUpdate отправляет смену фазы транзакции
func (h *Hub) BroadcastTxUpdate(record *models.TxRecord) {
	h.Broadcast(&TxUpdateMessage{
		Type: string(MessageTypeTxUpdate),
		Data: record,
	})
}

// BroadcastCatalogUpdate отправляет уведомление о перевыгрузке каталога
func (h *Hub) BroadcastCatalogUpdate(markets, vaults int) {
	h.Broadcast(&CatalogUpdateMessage{
		Type:    string(MessageTypeCatalogUpdate),
		Markets: markets,
		Vaults:  vaults,
	})
}

// BroadcastPositionUpdate отправляет пересчитанную позицию
func (h *Hub) BroadcastPositionUpdate(user, marketKey string, data interface{}) {
	h.Broadcast(&PositionUpdateMessage{
		Type:      string(MessageTypePositionUpdate),
		User:      user,
		MarketKey: marketKey,
		Data:      data,
	})
}

// BroadcastNotification отправляет произвольное уведомление
func (h *Hub) BroadcastNotification(notification interface{}) {
	h.Broadcast(&NotificationMessage{
		Type: string(MessageTypeNotification),
		Data: notification,
	})
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
