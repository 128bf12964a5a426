package stream

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/tbourn/go-leaderboard-backend/internal/config"
)

const kafkaQueueSize = 256

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors ranking snapshots to a Kafka topic. Send only enqueues;
// a background loop started by Start performs the writes.
type KafkaSink struct {
	writer  messageWriter
	log     zerolog.Logger
	queue   chan Event
	timeout time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewKafkaSink builds a sink for cfg. It does not dial until the first write.
func NewKafkaSink(cfg config.KafkaConfig, log zerolog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka sink requires brokers and topic")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newKafkaSinkWithWriter(w, log), nil
}

func newKafkaSinkWithWriter(w messageWriter, log zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer:  w,
		log:     log.With().Str("component", "kafka_sink").Logger(),
		queue:   make(chan Event, kafkaQueueSize),
		timeout: 5 * time.Second,
	}
}

// Send enqueues ev, dropping it when the queue is full.
func (k *KafkaSink) Send(ev Event) {
	select {
	case k.queue <- ev:
	default:
		k.log.Warn().Uint64("seq", ev.Seq).Msg("kafka queue full, event dropped")
	}
}

// Start launches the write loop.
func (k *KafkaSink) Start(ctx context.Context) {
	ctx, k.cancel = context.WithCancel(ctx)
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-k.queue:
				k.write(ctx, ev)
			}
		}
	}()
}

func (k *KafkaSink) write(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		k.log.Error().Err(err).Msg("kafka marshal failed")
		return
	}
	wctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(ev.Type),
		Value: payload,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "seq", Value: []byte(strconv.FormatUint(ev.Seq, 10))},
		},
	}
	if err := k.writer.WriteMessages(wctx, msg); err != nil {
		k.log.Warn().Err(err).Uint64("seq", ev.Seq).Msg("kafka write failed")
	}
}

// Stop ends the loop and closes the writer.
func (k *KafkaSink) Stop() error {
	var err error
	k.stopOnce.Do(func() {
		if k.cancel != nil {
			k.cancel()
		}
		k.wg.Wait()
		err = k.writer.Close()
	})
	return err
}
