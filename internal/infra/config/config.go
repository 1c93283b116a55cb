// Пакет config отвечает за сбор и предоставление конфигурации ридера истории.
// Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. нормализует и валидирует входные значения, подставляя значения по умолчанию,
//  3. копит предупреждения о подставленных значениях (выводятся после инициализации логгера),
//  4. предоставляет неизменяемый снимок через Env().
//
// Конфиг среды управляет подключением к Telegram API (идентичность приложения,
// телефон, паспорт устройства), файлами сессии и локальной базы, логированием,
// ограничением скорости запросов и таймаутами ожиданий.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env).
//
// NB: значения уже проходят минимальную валидацию и нормализацию в loadConfig.
type EnvConfig struct {
	APIID        int
	APIHash      string
	PhoneNumber  string
	SessionFile  string
	DatabaseFile string
	LogLevel     string
	ThrottleRPS  int
	TestDC       bool
	// Паспорт устройства, передаваемый в SetParameters
	DeviceModel    string
	SystemVersion  string
	SystemLangCode string
	// Таймауты (секунды): ожидание решения об авторизации и один round-trip
	AuthWaitTimeoutSec int
	RequestTimeoutSec  int
	// Сколько сообщений печатать командой more/в разовом режиме
	HistoryPrintLimit int
	// Файловое логирование
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool
}

// AuthWaitTimeout возвращает таймаут ожидания защёлки готовности.
func (e EnvConfig) AuthWaitTimeout() time.Duration {
	return time.Duration(e.AuthWaitTimeoutSec) * time.Second
}

// RequestTimeout возвращает таймаут одного запроса к клиенту.
func (e EnvConfig) RequestTimeout() time.Duration {
	return time.Duration(e.RequestTimeoutSec) * time.Second
}

// Config хранит конфигурацию среды и накопленные предупреждения.
type Config struct {
	Env      EnvConfig
	warnings []string     // предупреждения, накопленные при чтении окружения
	mu       sync.RWMutex // защита конкурентного доступа к конфигурации
}

// Значения по умолчанию для параметров окружения и связанных файлов.
const (
	defaultThrottleRPS        = 2
	defaultLogLevel           = "info"
	defaultSessionFile        = "data/session.json"
	defaultDatabaseFile       = "data/reader.bbolt"
	defaultDeviceModel        = "Desktop"
	defaultSystemVersion      = "Linux"
	defaultSystemLangCode     = "en"
	defaultAuthWaitTimeoutSec = 60
	defaultRequestTimeoutSec  = 30
	defaultHistoryPrintLimit  = 20
	// Файловое логирование (LOG_FILE не имеет дефолта - должен быть явно указан для активации)
	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// Load — точка входа для инициализации глобальной конфигурации.
// Повторный вызов запрещен (возвращается ошибка), чтобы избежать гонок
// конфигурации на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	cfgDone = true
	return nil
}

// loadConfig выполняет фактическую загрузку/валидацию без установки глобального
// состояния. Удобно для тестов: можно собрать временный Config и проверить его.
func loadConfig(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	apiID, err := parseRequiredInt("API_ID")
	if err != nil {
		return nil, err
	}

	apiHash := strings.TrimSpace(os.Getenv("API_HASH"))
	if apiHash == "" {
		return nil, errors.New("env API_HASH must be set")
	}

	phone := strings.TrimSpace(os.Getenv("PHONE_NUMBER"))
	if phone == "" {
		return nil, errors.New("env PHONE_NUMBER must be set")
	}

	var warnings []string

	env := EnvConfig{
		APIID:              apiID,
		APIHash:            apiHash,
		PhoneNumber:        phone,
		SessionFile:        sanitizeString("SESSION_FILE", defaultSessionFile, &warnings),
		DatabaseFile:       sanitizeString("DATABASE_FILE", defaultDatabaseFile, &warnings),
		LogLevel:           sanitizeLogLevel("LOG_LEVEL", defaultLogLevel, &warnings),
		ThrottleRPS:        parseIntDefault("THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings),
		TestDC:             strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true"),
		DeviceModel:        sanitizeString("DEVICE_MODEL", defaultDeviceModel, &warnings),
		SystemVersion:      sanitizeString("SYSTEM_VERSION", defaultSystemVersion, &warnings),
		SystemLangCode:     sanitizeString("SYSTEM_LANG_CODE", defaultSystemLangCode, &warnings),
		AuthWaitTimeoutSec: parseIntDefault("AUTH_WAIT_TIMEOUT_SEC", defaultAuthWaitTimeoutSec, greaterThanZero, &warnings),
		RequestTimeoutSec:  parseIntDefault("REQUEST_TIMEOUT_SEC", defaultRequestTimeoutSec, greaterThanZero, &warnings),
		HistoryPrintLimit:  parseIntDefault("HISTORY_PRINT_LIMIT", defaultHistoryPrintLimit, greaterThanZero, &warnings),
		// Файловое логирование
		LogFile:           strings.TrimSpace(os.Getenv("LOG_FILE")),
		LogFileLevel:      sanitizeLogLevel("LOG_FILE_LEVEL", defaultLogFileLevel, &warnings),
		LogFileMaxSize:    parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings),
		LogFileMaxBackups: parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings),
		LogFileMaxAge:     parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings),
		LogFileCompress:   parseBoolDefault("LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings),
	}

	return &Config{
		Env:      env,
		warnings: warnings,
	}, nil
}

// Warnings возвращает накопленные предупреждения, возникшие при загрузке .env
// (например, когда подставлено значение по умолчанию). Возвращается копия.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает EnvConfig из глобального singleton. Это неизменяемый снимок
// на момент загрузки.
func Env() EnvConfig {
	return cfgInstance.Env
}

// parseRequiredInt читает обязательную целочисленную переменную окружения name.
// Если переменная не задана или не является корректным числом — возвращает ошибку.
func parseRequiredInt(name string) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, fmt.Errorf("env %s must be set", name)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env %s must be a valid integer: %w", name, err)
	}
	return v, nil
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// дополнительную проверку validator — возвращает defaultVal и пишет предупреждение.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf — служебная функция для накопления предупреждений о некорректных
// переменных окружения. Список затем доступен через Warnings().
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

// parseBoolDefault читает name как bool. Если пусто/некорректно — возвращает defaultVal и пишет предупреждение.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %v", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// sanitizeLogLevel нормализует уровень логирования и ограничивает значения набором
// {debug, info, warn, error}. Всё остальное превращается в defaultVal.
func sanitizeLogLevel(name, defaultVal string, warnings *[]string) string {
	raw := os.Getenv(name)
	lvl := strings.ToLower(strings.TrimSpace(raw))
	if lvl == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, defaultVal)
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env %s value %q is invalid; using default %q", name, raw, defaultVal)
		return defaultVal
	}
}

// sanitizeString возвращает непустое значение переменной. Если переменная не
// задана, подставляет fallback и пишет предупреждение.
func sanitizeString(name, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}
