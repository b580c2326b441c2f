// Команда dlq-reprocess переотправляет сообщения из DLQ витрины в исходные топики.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/messaging/kafka"
)

const (
	brokersEnv   = "STOREFRONT_KAFKA_BROKERS"
	replayClient = "storefront-dlq-reprocess"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	filter      replayFilter
}

func (c config) mode() string {
	if c.execute {
		return "execute"
	}
	return "dry-run"
}

// Подключения к Kafka на один запуск. producer есть только в режиме execute.
type replayDeps struct {
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
}

// Close закрывает подключения в обратном порядке открытия.
func (d replayDeps) Close() error {
	var errs []error
	if d.producer != nil {
		errs = append(errs, d.producer.Close())
	}
	if d.consumer != nil {
		errs = append(errs, d.consumer.Close())
	}
	if d.client != nil {
		errs = append(errs, d.client.Close())
	}
	return errors.Join(errs...)
}

// connect подменяется в тестах.
var connect = func(cfg config) (replayDeps, error) {
	var deps replayDeps

	clientCfg := sarama.NewConfig()
	clientCfg.ClientID = replayClient
	clientCfg.Consumer.Return.Errors = true
	client, err := sarama.NewClient(cfg.brokers, clientCfg)
	if err != nil {
		return deps, fmt.Errorf("connect to kafka: %w", err)
	}
	deps.client = client

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return deps, errors.Join(fmt.Errorf("open dlq consumer: %w", err), deps.Close())
	}
	deps.consumer = saramaConsumerAdapter{consumer: consumer}

	if cfg.execute {
		producer, err := sarama.NewSyncProducer(cfg.brokers, kafka.NewProducerConfig(kafka.WithClientID(replayClient)))
		if err != nil {
			return deps, errors.Join(fmt.Errorf("open replay producer: %w", err), deps.Close())
		}
		deps.producer = producer
	}
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		cfg     config
		brokers string
	)
	fs.StringVar(&brokers, "brokers", "", "Kafka brokers, comma-separated (fallback: "+brokersEnv+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic for outbox dead letters")
	fs.IntVar(&cfg.limit, "limit", 100, "max number of DLQ messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish candidates; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 2*time.Second, "stop reading a partition after this idle period")
	fs.StringVar(&cfg.filter.eventType, "event-type", "", "replay only this event type (OrderCreated, OrderStatusChanged, OrderCancelled)")
	fs.StringVar(&cfg.filter.orderID, "order", "", "replay only events of this order id")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = os.Getenv(brokersEnv)
	}
	cfg.brokers = parseBrokers(brokers)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)
	cfg.filter = cfg.filter.normalized()

	var problems []string
	if len(cfg.brokers) == 0 {
		problems = append(problems, "no brokers: pass -brokers or set "+brokersEnv)
	}
	if cfg.sourceTopic == "" || cfg.targetTopic == "" {
		problems = append(problems, "source and target topics must be set")
	}
	if cfg.limit <= 0 {
		problems = append(problems, "limit must be positive")
	}
	if cfg.idleTimeout <= 0 {
		problems = append(problems, "idle-timeout must be positive")
	}
	if len(problems) > 0 {
		return config{}, fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	brokers := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	if len(brokers) == 0 {
		return nil
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithFields(log.Fields{
		"component": "dlq-reprocess",
		"source":    cfg.sourceTopic,
		"mode":      cfg.mode(),
	})

	deps, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := deps.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close kafka connections")
		}
	}()

	r, err := newReplayer(cfg, deps.client, deps.consumer, deps.producer)
	if err != nil {
		return err
	}
	r.logger = logger

	logger.WithFields(log.Fields{
		"target":     cfg.targetTopic,
		"limit":      cfg.limit,
		"newest":     cfg.fromNewest,
		"event_type": cfg.filter.eventType,
		"order_id":   cfg.filter.orderID,
	}).Info("scanning dead letters")

	stats, err := r.Run(ctx)
	logger.WithFields(log.Fields{
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
		"filtered": stats.filtered,
	}).Info("dlq scan complete")
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
