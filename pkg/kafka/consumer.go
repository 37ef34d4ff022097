package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "VolDesk/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer wraps Kafka readers with a worker pool. Failed messages are
// retried with jittered backoff and shipped to the DLQ topic when retries
// run out, so a poison message never blocks its partition forever.
type Consumer struct {
	cfg       *ConsumerConfig
	log       *applogger.Logger
	readers   map[string]*kafka.Reader
	handlers  map[string]MessageHandler
	stopChan  chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	msgChan   chan *message
	dlq       *kafka.Writer
	partLocks map[string]map[int]*sync.Mutex
	partMu    sync.Mutex
}

type message struct {
	topic string
	data  []byte
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(log *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		log:       log,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		stopChan:  make(chan struct{}),
		msgChan:   make(chan *message, cfg.BufferSize),
		partLocks: make(map[string]map[int]*sync.Mutex),
	}

	initConsumerMetricsOnce()

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	return c, nil
}

// RegisterHandler registers a message handler for a specific topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start starts the Kafka readers and the worker pool.
func (c *Consumer) Start() error {
	for topic := range c.handlers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = reader
		c.log.Info("kafka consumer registered topic", applogger.String("topic", topic))
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.messageWorker()
	}

	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.consumeMessages(topic, reader)
	}

	c.log.Info("kafka consumer started", applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop stops the Kafka consumer gracefully.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		close(c.stopChan)
		close(c.msgChan)

		stopErr = c.waitForWg(ctx)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("error closing reader",
					applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("error closing dlq writer", applogger.Error(err))
			}
		}

		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})

	return stopErr
}

func (c *Consumer) waitForWg(ctx context.Context) error {
	doneChan := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(doneChan)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-doneChan:
		return nil
	}
}

func (c *Consumer) consumeMessages(topic string, reader *kafka.Reader) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			msg, err := reader.ReadMessage(ctx)
			cancel()

			if err != nil {
				if !errors.Is(err, context.DeadlineExceeded) {
					c.log.Warn("error reading message",
						applogger.String("topic", topic), applogger.Error(err))
				}
				continue
			}

			select {
			case c.msgChan <- &message{topic: topic, data: msg.Value, km: msg}:
				consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
			case <-c.stopChan:
				return
			}
		}
	}
}

// messageWorker processes messages from the channel.
func (c *Consumer) messageWorker() {
	defer c.wg.Done()

	for msg := range c.msgChan {
		handler, exists := c.handlers[msg.topic]
		if !exists {
			continue
		}
		start := time.Now()
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("panic in message handler",
						applogger.String("topic", msg.topic), applogger.Any("panic", r))
				}
			}()

			// Max in-flight of 1 per (topic, partition) preserves partition order.
			pl := c.getPartitionLock(msg.topic, msg.km.Partition)
			pl.Lock()
			defer pl.Unlock()

			var err error
			attempts := 0
			for {
				attempts++
				err = handler.Handle(context.Background(), msg.data)
				if err == nil || attempts > c.cfg.RetryMax {
					break
				}
				sleep := backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)
				select {
				case <-time.After(sleep):
				case <-c.stopChan:
					return
				}
			}
			if err != nil {
				c.log.Error("message handling failed",
					applogger.String("topic", msg.topic),
					applogger.Int("attempts", attempts),
					applogger.Error(err))
				if c.dlq != nil && c.cfg.DLQTopic != "" {
					if dlqErr := c.dlq.WriteMessages(context.Background(), kafka.Message{
						Topic:   c.cfg.DLQTopic,
						Value:   msg.data,
						Time:    time.Now(),
						Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
					}); dlqErr != nil {
						c.log.Error("error writing to dlq", applogger.Error(dlqErr))
					}
				}
			}

			// Commit on success or after DLQ to avoid poison loops.
			if err == nil || (c.dlq != nil && c.cfg.DLQTopic != "") {
				if reader := c.readers[msg.topic]; reader != nil {
					_ = c.commitWithRetry(reader, msg.km, 3)
				}
			}
			consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
		}()
	}
}

// commitWithRetry commits a single message offset with bounded retries.
func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Warn("error committing message", applogger.Int("attempts", max), applogger.Error(err))
	return err
}

func (c *Consumer) getPartitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()

	if _, ok := c.partLocks[topic]; !ok {
		c.partLocks[topic] = make(map[int]*sync.Mutex)
	}
	if _, ok := c.partLocks[topic][partition]; !ok {
		c.partLocks[topic][partition] = &sync.Mutex{}
	}
	return c.partLocks[topic][partition]
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max {
		exp = max
	}
	// jitter up to 50%
	jitter := time.Duration(rand.Int63n(int64(exp) / 2))
	return exp - jitter
}

// Consumer metrics
var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerMetricsOnce   sync.Once
)

func initConsumerMetricsOnce() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "voldesk_kafka_consumer_queue_depth", Help: "Number of messages waiting in consumer queue"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "voldesk_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}
