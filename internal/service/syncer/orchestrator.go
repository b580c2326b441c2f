package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-sync/internal/resource"
)

var errNoFetcher = errors.New("resource has no remote fetcher")

// Максимум состояний за одну загрузку: loading, loading, success|error.
const maxEmissions = 3

// Options задаёт параметры оркестратора.
type Options struct {
	Logger     *log.Entry
	Metrics    *metrics.SyncMetrics
	FetchDedup bool
}

// Option настраивает Orchestrator.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики загрузок.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithFetchDedup объединяет параллельные запросы одного ресурса (Kind + Key) в один.
// Второй вызывающий дожидается результата первого запроса вместо повторного похода в сеть.
func WithFetchDedup() Option {
	return func(opts *Options) {
		opts.FetchDedup = true
	}
}

// Orchestrator координирует загрузку ресурсов: сначала кэш, затем сеть по политике ресурса.
// Безопасен для конкурентного использования.
type Orchestrator struct {
	logger  *log.Entry
	metrics *metrics.SyncMetrics
	group   *singleflight.Group
}

// New создаёт оркестратор.
func New(options ...Option) *Orchestrator {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "sync-orchestrator")
	}

	o := &Orchestrator{
		logger:  logger,
		metrics: opts.Metrics,
	}
	if opts.FetchDedup {
		o.group = &singleflight.Group{}
	}
	return o
}

// Load запускает загрузку ресурса и возвращает поток состояний.
// Канал закрывается после терминального Success или Error. Отмена ctx прекращает
// выдачу состояний, но начатый сетевой запрос доводится до конца и сохраняется в кэш.
func Load[Result, Request any](ctx context.Context, o *Orchestrator, res Resource[Result, Request]) <-chan resource.State[Result] {
	out := make(chan resource.State[Result], maxEmissions)
	go func() {
		defer close(out)
		run(ctx, o, res, out)
	}()
	return out
}

// Collect выполняет загрузку синхронно и возвращает все состояния по порядку.
func Collect[Result, Request any](ctx context.Context, o *Orchestrator, res Resource[Result, Request]) []resource.State[Result] {
	states := make([]resource.State[Result], 0, maxEmissions)
	for state := range Load(ctx, o, res) {
		states = append(states, state)
	}
	return states
}

// Last возвращает терминальное состояние загрузки.
func Last[Result, Request any](ctx context.Context, o *Orchestrator, res Resource[Result, Request]) (resource.State[Result], bool) {
	states := Collect(ctx, o, res)
	if len(states) == 0 {
		return resource.State[Result]{}, false
	}
	last := states[len(states)-1]
	if last.IsLoading() {
		return last, false
	}
	return last, true
}

func run[Result, Request any](ctx context.Context, o *Orchestrator, res Resource[Result, Request], out chan<- resource.State[Result]) {
	kind := res.Kind()
	logger := o.logger.WithField("kind", kind)

	emit := func(state resource.State[Result]) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case out <- state:
			return true
		case <-ctx.Done():
			return false
		}
	}

	cached, present, err := safeLoad(ctx, res)
	if err != nil {
		logger.WithError(err).Warn("cache read failed, continuing without cached payload")
		var zero Result
		cached, present = zero, false
	}

	if !emit(resource.Loading[Result]()) {
		return
	}

	shouldRefresh, err := safePolicy(res, cached, present)
	if err != nil {
		o.recordLoad(kind, metrics.LoadResultFailed)
		logger.WithError(err).Error("refresh policy failed")
		emit(resource.ErrorMaybe(err.Error(), cached, present))
		return
	}

	if !shouldRefresh {
		value, ok, err := safeLoad(ctx, res)
		if err != nil {
			o.recordLoad(kind, metrics.LoadResultFailed)
			emit(resource.ErrorMaybe(persistenceMessage(err), cached, present))
			return
		}
		o.recordLoad(kind, metrics.LoadResultCache)
		emit(success(value, ok))
		return
	}

	if !emit(resource.Loading[Result]()) {
		return
	}

	err = refresh(ctx, o, res)
	if ctx.Err() != nil {
		logger.Debug("consumer left, refresh continues in background")
		return
	}
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			o.recordLoad(kind, metrics.LoadResultFailed)
		} else if present {
			o.recordLoad(kind, metrics.LoadResultStale)
		} else {
			o.recordLoad(kind, metrics.LoadResultFailed)
		}
		logger.WithError(err).Warn("refresh failed, serving cached payload")
		emit(resource.ErrorMaybe(err.Error(), cached, present))
		return
	}

	value, ok, err := safeLoad(ctx, res)
	if err != nil {
		o.recordLoad(kind, metrics.LoadResultFailed)
		emit(resource.ErrorMaybe(persistenceMessage(err), cached, present))
		return
	}
	o.recordLoad(kind, metrics.LoadResultRefreshed)
	emit(success(value, ok))
}

// refresh выполняет FetchRemote и Persist в контексте, не зависящем от отмены вызывающего.
// Возвращается раньше, если вызывающий отменил ctx; запрос при этом продолжается.
func refresh[Result, Request any](ctx context.Context, o *Orchestrator, res Resource[Result, Request]) error {
	detached := context.WithoutCancel(ctx)
	work := func() (any, error) {
		return nil, fetchAndPersist(detached, o, res)
	}

	if o.group != nil {
		ch := o.group.DoChan(identity(res), work)
		select {
		case r := <-ch:
			if r.Shared && o.metrics != nil {
				o.metrics.RecordFetchShared(res.Kind())
			}
			return r.Err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := work()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func fetchAndPersist[Result, Request any](ctx context.Context, o *Orchestrator, res Resource[Result, Request]) error {
	kind := res.Kind()
	if o.metrics != nil {
		o.metrics.RecordFetchStarted()
	}
	started := time.Now()
	payload, err := safeFetch(ctx, res)
	if o.metrics != nil {
		o.metrics.RecordFetchFinished(kind, time.Since(started))
	}
	if err != nil {
		return err
	}

	if err := safePersist(ctx, res, payload); err != nil {
		if o.metrics != nil {
			o.metrics.RecordPersistFailure(kind)
		}
		if errors.Is(err, domain.ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return nil
}

func safeFetch[Result, Request any](ctx context.Context, res Resource[Result, Request]) (payload Request, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrFetchFailed, r)
		}
	}()
	payload, err = res.FetchRemote(ctx)
	if err != nil && !errors.Is(err, domain.ErrFetchFailed) && !errors.Is(err, domain.ErrRemoteUnavailable) &&
		!errors.Is(err, domain.ErrPermissionDenied) && !errors.Is(err, domain.ErrRemoteNotFound) {
		err = fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
	return payload, err
}

// safeLoad читает кэш; паника считается ошибкой хранилища.
func safeLoad[Result, Request any](ctx context.Context, res Resource[Result, Request]) (value Result, present bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero Result
			value, present = zero, false
			err = fmt.Errorf("%w: cache read panic: %v", domain.ErrPersistence, r)
		}
	}()
	return res.LoadFromCache(ctx)
}

func safePolicy[Result, Request any](res Resource[Result, Request], cached Result, present bool) (should bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			should, err = false, fmt.Errorf("refresh policy panic: %v", r)
		}
	}()
	return res.ShouldRefresh(cached, present), nil
}

// safePersist выполняется и в фоне после ухода потребителя, поэтому паника не должна выйти наружу.
func safePersist[Result, Request any](ctx context.Context, res Resource[Result, Request], payload Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: persist panic: %v", domain.ErrPersistence, r)
		}
	}()
	return res.Persist(ctx, payload)
}

func success[Result any](value Result, present bool) resource.State[Result] {
	if present {
		return resource.Success(value)
	}
	return resource.SuccessEmpty[Result]()
}

func persistenceMessage(err error) string {
	if errors.Is(err, domain.ErrPersistence) {
		return err.Error()
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err).Error()
}

func (o *Orchestrator) recordLoad(kind, result string) {
	if o.metrics != nil {
		o.metrics.RecordLoad(kind, result)
	}
}
