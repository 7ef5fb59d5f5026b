package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе zap
//
// Единый логгер для всего сервиса: JSON в проде, console в разработке.
// Поверх zap добавлены конструкторы полей предметной области (market,
// action, tx_hash), чтобы записи разных компонентов были единообразны.

// LogConfig - настройки логгера
type LogConfig struct {
	// Level: debug, info, warn, error, fatal (default: info)
	Level string
	// Format: json или text (default: json)
	Format string
	// Output - путь к файлу; пусто = stderr
	Output string
	// Development включает caller и stacktrace на warn
	Development bool
}

// Logger оборачивает zap.Logger вместе с sugar-вариантом
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// parseLevel переводит строку в уровень zap. Неизвестное = info.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создаёт логгер по конфигурации. Никогда не возвращает nil
// и не паникует: при недоступном файле вывода откатывается на stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			sink = zapcore.AddSync(f)
		}
		// при ошибке остаёмся на stderr
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// Sugar возвращает sugar-логгер для printf-стиля.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// With возвращает новый логгер с добавленными полями.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent помечает записи именем компонента (api, catalog, tx).
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(Component(component))
}

// WithMarket помечает записи идентификатором рынка.
func (l *Logger) WithMarket(marketKey string) *Logger {
	return l.With(Market(marketKey))
}

// WithUser помечает записи адресом пользователя.
func (l *Logger) WithUser(address string) *Logger {
	return l.With(User(address))
}

// WithAction помечает записи типом действия.
func (l *Logger) WithAction(action string) *Logger {
	return l.With(Action(action))
}

// ============================================================
// Конструкторы полей предметной области
// ============================================================

// Component - имя компонента
func Component(name string) zap.Field { return zap.String("component", name) }

// Market - hex идентификатор рынка
func Market(key string) zap.Field { return zap.String("market", key) }

// User - адрес пользователя
func User(address string) zap.Field { return zap.String("user", address) }

// Action - тип действия (supply, borrow, repay, ...)
func Action(action string) zap.Field { return zap.String("action", action) }

// Phase - фаза транзакции
func Phase(phase string) zap.Field { return zap.String("phase", phase) }

// TxHash - хэш транзакции
func TxHash(hash string) zap.Field { return zap.String("tx_hash", hash) }

// Amount - сумма в базовых единицах (строкой, big.Int не влезает в float)
func Amount(amount string) zap.Field { return zap.String("amount", amount) }

// Token - адрес токена
func Token(address string) zap.Field { return zap.String("token", address) }

// Latency - латентность в миллисекундах
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - идентификатор HTTP запроса
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitGlobalLogger инициализирует и устанавливает глобальный логгер.
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер.
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger возвращает глобальный логгер, создавая дефолтный
// при первом обращении.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	if globalLogger != nil {
		defer globalMu.RUnlock()
		return globalLogger
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

// Debug пишет через глобальный логгер
func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }

// Info пишет через глобальный логгер
func Info(msg string, fields ...zap.Field) { GetGlobalLogger().Info(msg, fields...) }

// Warn пишет через глобальный логгер
func Warn(msg string, fields ...zap.Field) { GetGlobalLogger().Warn(msg, fields...) }

// Error пишет через глобальный логгер
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

// Debugf - printf-стиль через глобальный логгер
func Debugf(template string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(template, args...) }

// Infof - printf-стиль через глобальный логгер
func Infof(template string, args ...interface{}) { GetGlobalLogger().sugar.Infof(template, args...) }

// Warnf - printf-стиль через глобальный логгер
func Warnf(template string, args ...interface{}) { GetGlobalLogger().sugar.Warnf(template, args...) }

// Errorf - printf-стиль через глобальный логгер
func Errorf(template string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(template, args...) }
