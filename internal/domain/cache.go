package domain

import "time"

// CacheEntry — запись локального кэша. На ключ приходится не больше одной записи,
// повторная запись перезаписывает значение.
type CacheEntry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}
