// Package resource описывает единый контракт между производителями данных и их потребителями.
package resource

import "fmt"

// Status — активный вариант State.
type Status uint8

const (
	StatusLoading Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// State — неизменяемое значение с ровно одним активным вариантом:
// Loading, Success(payload?) или Error(message, payload?).
// Error может нести последний известный payload, чтобы UI показал устаревшие данные с предупреждением.
type State[T any] struct {
	status     Status
	payload    T
	hasPayload bool
	message    string
}

// Loading сигнализирует, что операция выполняется.
func Loading[T any]() State[T] {
	return State[T]{status: StatusLoading}
}

// Success несёт результат. Пустой payload (например, пустой срез) тоже считается успехом.
func Success[T any](payload T) State[T] {
	return State[T]{status: StatusSuccess, payload: payload, hasPayload: true}
}

// SuccessEmpty — успех без payload (в кэше ничего нет).
func SuccessEmpty[T any]() State[T] {
	return State[T]{status: StatusSuccess}
}

// Error сигнализирует об ошибке и сохраняет устаревший payload.
func Error[T any](message string, stale T) State[T] {
	return State[T]{status: StatusError, payload: stale, hasPayload: true, message: message}
}

// ErrorEmpty создаёт ошибку без данных.
func ErrorEmpty[T any](message string) State[T] {
	return State[T]{status: StatusError, message: message}
}

// ErrorMaybe прикладывает payload, только если он присутствует.
func ErrorMaybe[T any](message string, stale T, present bool) State[T] {
	if present {
		return Error(message, stale)
	}
	return ErrorEmpty[T](message)
}

func (s State[T]) Status() Status { return s.status }

func (s State[T]) IsLoading() bool { return s.status == StatusLoading }

func (s State[T]) IsSuccess() bool { return s.status == StatusSuccess }

func (s State[T]) IsError() bool { return s.status == StatusError }

// Payload возвращает данные и признак их наличия. У Loading данных нет никогда.
func (s State[T]) Payload() (T, bool) {
	return s.payload, s.hasPayload
}

// Message возвращает текст ошибки; для остальных вариантов пусто.
func (s State[T]) Message() string {
	return s.message
}

func (s State[T]) String() string {
	switch s.status {
	case StatusError:
		return fmt.Sprintf("error(%q, payload=%t)", s.message, s.hasPayload)
	case StatusSuccess:
		return fmt.Sprintf("success(payload=%t)", s.hasPayload)
	default:
		return s.status.String()
	}
}

// Map преобразует payload, сохраняя вариант и сообщение.
func Map[T, U any](s State[T], fn func(T) U) State[U] {
	out := State[U]{status: s.status, message: s.message, hasPayload: s.hasPayload}
	if s.hasPayload {
		out.payload = fn(s.payload)
	}
	return out
}
