package websocket

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeTxUpdate - смена фазы охраняемой транзакции
	// Отправляется на каждом переходе: approve, действие, подтверждение, отказ
	MessageTypeTxUpdate MessageType = "txUpdate"

	// MessageTypeCatalogUpdate - каталог рынков перевыгружен из Morpho API
	// Отправляется после каждого успешного Refresh
	MessageTypeCatalogUpdate MessageType = "catalogUpdate"

	// MessageTypePositionUpdate - позиция пользователя пересчитана
	// Отправляется после подтверждения действия, затронувшего позицию
	MessageTypePositionUpdate MessageType = "positionUpdate"

	// MessageTypeNotification - произвольное уведомление для UI
	MessageTypeNotification MessageType = "notification"
)
