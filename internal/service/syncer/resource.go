// Package syncer реализует загрузку ресурсов по схеме cache-then-network.
package syncer

import "context"

// Resource описывает один вид ресурса для оркестратора.
//
// LoadFromCache не должен иметь побочных эффектов: оркестратор читает кэш
// несколько раз за одну загрузку. Persist обязан быть идемпотентным.
type Resource[Result, Request any] interface {
	Kind() string
	LoadFromCache(ctx context.Context) (Result, bool, error)
	ShouldRefresh(cached Result, present bool) bool
	FetchRemote(ctx context.Context) (Request, error)
	Persist(ctx context.Context, payload Request) error
}

// Keyed — ресурс с идентичностью внутри своего вида (например, заказ по id).
// Используется для дедупликации параллельных запросов.
type Keyed interface {
	Key() string
}

// Funcs собирает Resource из функций.
type Funcs[Result, Request any] struct {
	KindName string
	KeyName  string
	Cache    func(ctx context.Context) (Result, bool, error)
	Refresh  Policy[Result]
	Fetch    func(ctx context.Context) (Request, error)
	Save     func(ctx context.Context, payload Request) error
}

var (
	_ Resource[int, int] = Funcs[int, int]{}
	_ Keyed              = Funcs[int, int]{}
)

func (f Funcs[Result, Request]) Kind() string { return f.KindName }

func (f Funcs[Result, Request]) Key() string { return f.KeyName }

func (f Funcs[Result, Request]) LoadFromCache(ctx context.Context) (Result, bool, error) {
	if f.Cache == nil {
		var zero Result
		return zero, false, nil
	}
	return f.Cache(ctx)
}

// ShouldRefresh без заданной политики обновляет всегда.
func (f Funcs[Result, Request]) ShouldRefresh(cached Result, present bool) bool {
	if f.Refresh == nil {
		return true
	}
	return f.Refresh(cached, present)
}

func (f Funcs[Result, Request]) FetchRemote(ctx context.Context) (Request, error) {
	if f.Fetch == nil {
		var zero Request
		return zero, errNoFetcher
	}
	return f.Fetch(ctx)
}

func (f Funcs[Result, Request]) Persist(ctx context.Context, payload Request) error {
	if f.Save == nil {
		return nil
	}
	return f.Save(ctx, payload)
}

func identity(res any) string {
	kind := ""
	if k, ok := res.(interface{ Kind() string }); ok {
		kind = k.Kind()
	}
	if keyed, ok := res.(Keyed); ok && keyed.Key() != "" {
		return kind + ":" + keyed.Key()
	}
	return kind
}
