// Command audit-test pushes synthetic security events through the same
// publisher and sinks the gateway uses. Point KAFKA_BROKERS at a broker to
// check that events arrive on the topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"thgate/internal/audit"
	"thgate/internal/platform/config"
	"thgate/internal/platform/kafka"
	"thgate/internal/platform/kafka/producer"
	"thgate/internal/platform/logger"
	"thgate/pkg/requestcontext"
)

// countingSink counts what actually left the buffer.
type countingSink struct {
	written atomic.Int64
}

func (s *countingSink) Write(context.Context, audit.Event) error {
	s.written.Add(1)
	return nil
}

func main() {
	count := flag.Int("n", 20, "number of events to emit")
	buffer := flag.Int("buffer", 10, "async buffer size; events beyond it are dropped")
	eventType := flag.String("type", string(audit.EventLoginFailed), "event type to emit")
	clientIP := flag.String("ip", "203.0.113.10", "client address recorded on the events")
	flag.Parse()

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	counter := &countingSink{}
	sinks := []audit.Sink{audit.NewLogSink(log), counter}

	if len(cfg.Kafka.Brokers) > 0 {
		pc := kafka.DefaultProducerConfig()
		pc.Brokers = strings.Join(cfg.Kafka.Brokers, ",")
		pc.Topic = cfg.Kafka.Topic
		p, err := producer.New(pc, log)
		if err != nil {
			fmt.Fprintln(os.Stderr, "kafka:", err)
			os.Exit(1)
		}
		defer p.Close()
		sinks = append(sinks, audit.NewKafkaSink(p))
		fmt.Printf("publishing to kafka topic %s\n", p.Topic())
	}

	publisher := audit.NewPublisher(sinks,
		audit.WithAsyncBuffer(*buffer),
		audit.WithPublisherLogger(log),
	)

	ctx := requestcontext.WithClientMetadata(context.Background(), *clientIP, "audit-test/1.0")
	for i := range *count {
		rctx := requestcontext.WithRequestID(requestcontext.WithTime(ctx, time.Now()), uuid.NewString())
		ev := audit.NewEvent(rctx, audit.EventType(*eventType), "sequence", fmt.Sprint(i+1))
		if err := publisher.Emit(rctx, ev); err != nil {
			fmt.Fprintf(os.Stderr, "event %d: %v\n", i+1, err)
		}
	}

	publisher.Close()
	written := counter.written.Load()
	fmt.Printf("emitted %d events, %d written, %d dropped by the buffer\n",
		*count, written, int64(*count)-written)
}
