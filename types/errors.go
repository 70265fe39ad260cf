package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheTypeUnknown      = errors.New("cache type unknown")
	ErrCacheOperationFailed  = errors.New("cache operation failed")
)

var (
	ErrBatchWindowInvalid = errors.New("batch window invalid")
	ErrBatchFetchIsNil    = errors.New("batch fetch function is nil")
)

var (
	ErrSourceTypeUnknown   = errors.New("datasource type unknown")
	ErrSourceQueryFailed   = errors.New("datasource query failed")
	ErrSourceUnavailable   = errors.New("datasource unavailable")
	ErrCollectionUnknown   = errors.New("collection unknown")
	ErrCircuitBreakerOpen  = errors.New("circuit breaker open")
	ErrSourceWriteFailed   = errors.New("datasource write failed")
	ErrSourceRowNotFound   = errors.New("datasource row not found")
	ErrSourceResponseShape = errors.New("datasource response malformed")
)

var (
	ErrStorageTypeUnknown  = errors.New("storage type unknown")
	ErrStorageKeyNotFound  = errors.New("storage key not found")
	ErrStorageWriteFailed  = errors.New("storage write failed")
	ErrStorageReadFailed   = errors.New("storage read failed")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrStorageKeyIsEmpty   = errors.New("storage key is empty")
	ErrStorageDataCorrupt  = errors.New("storage data corrupt")
	ErrStorageDeleteFailed = errors.New("storage delete failed")
)

var (
	ErrBusTypeUnknown      = errors.New("bus type unknown")
	ErrBusNotRunning       = errors.New("bus not running")
	ErrBusPublishFailed    = errors.New("bus publish failed")
	ErrBusConnectionFailed = errors.New("bus connection failed")
)

var (
	ErrItemNotFound       = errors.New("item not found")
	ErrQuantityInvalid    = errors.New("quantity invalid")
	ErrProductIDEmpty     = errors.New("product id empty")
	ErrCollectionNotReady = errors.New("collection not initialized")
)

var (
	ErrViewClosed    = errors.New("view closed")
	ErrNoMorePages   = errors.New("no more pages")
	ErrFiltersNil    = errors.New("filters are nil")
	ErrLimitInvalid  = errors.New("limit invalid")
	ErrSearchTooLong = errors.New("search term too long")
)

var (
	ErrIdentityEmpty       = errors.New("identity empty")
	ErrProfileNotResolved  = errors.New("profile not resolved")
	ErrAllowlistMisconfig  = errors.New("admin allowlist misconfigured")
	ErrRoleUnknown         = errors.New("role unknown")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrMetadataRoleInvalid = errors.New("metadata role invalid")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobFailed         = errors.New("cron job failed")
	ErrCronJobTimeout        = errors.New("cron job timeout")
	ErrCronSchedulerStopped  = errors.New("cron scheduler stopped")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrLoggerTypeUnknown  = errors.New("logger type unknown")
	ErrLoggerConfigNil    = errors.New("logger config is nil")
)

var (
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
	ErrInvalidState   = errors.New("invalid state")
	ErrNotSupported   = errors.New("not supported")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
