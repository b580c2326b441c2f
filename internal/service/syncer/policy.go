package syncer

import "time"

// Policy решает, нужно ли идти в сеть при текущем содержимом кэша.
type Policy[Result any] func(cached Result, present bool) bool

// Clock возвращает текущее время.
type Clock func() time.Time

// Never: только кэш, сеть не используется.
func Never[Result any]() Policy[Result] {
	return func(Result, bool) bool { return false }
}

// Always отдаёт кэш и всегда перепроверяет в сети.
func Always[Result any]() Policy[Result] {
	return func(Result, bool) bool { return true }
}

// WhenEmpty идёт в сеть только при пустом кэше.
func WhenEmpty[Result any]() Policy[Result] {
	return func(_ Result, present bool) bool { return !present }
}

// StaleAfter обновляет, если кэша нет или с последней записи прошло больше ttl.
// lastWrite извлекает время записи из закэшированного значения; без него кэш всегда считается устаревшим.
func StaleAfter[Result any](clock Clock, lastWrite func(Result) time.Time, ttl time.Duration) Policy[Result] {
	if lastWrite == nil {
		return Always[Result]()
	}
	if clock == nil {
		clock = time.Now
	}
	return func(cached Result, present bool) bool {
		if !present {
			return true
		}
		written := lastWrite(cached)
		if written.IsZero() {
			return true
		}
		return clock().Sub(written) > ttl
	}
}
