// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CloudLaunch/internal/logger"
	"github.com/Strob0t/CloudLaunch/internal/port/messagequeue"
)

const (
	streamName = "CLOUDLAUNCH"

	headerRequestID  = "X-Request-ID"
	headerRetryCount = "Retry-Count"
	headerError      = "X-Error"

	// maxRetries is the number of failed deliveries after which a message
	// goes to the dead-letter subject.
	maxRetries = 3
	dlqSuffix  = ".dlq"
)

var _ messagequeue.Queue = (*Queue)(nil)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name("cloudlaunch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching our topic patterns.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"runs.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject. The request id of ctx
// travels in a header.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
// Messages failing schema validation go straight to the dead-letter subject;
// messages whose handler fails are redelivered up to maxRetries times.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	base := context.WithoutCancel(ctx)
	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.handle(base, msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) handle(base context.Context, msg jetstream.Msg, handler messagequeue.Handler) {
	hctx := base
	hdrs := msg.Headers()
	if id := hdrs.Get(headerRequestID); id != "" {
		hctx = logger.WithRequestID(hctx, id)
	}

	if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
		slog.Warn("invalid message", "subject", msg.Subject(), "error", err)
		q.moveToDLQ(hctx, msg, err)
		return
	}

	if err := handler(hctx, msg.Subject(), msg.Data()); err != nil {
		slog.Error("message handler failed", "subject", msg.Subject(), "error", err)
		count := retryCount(hdrs)
		if count >= maxRetries {
			q.moveToDLQ(hctx, msg, err)
			return
		}
		q.retry(hctx, msg, count+1)
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "error", ackErr)
	}
}

// retry republishes msg with an incremented retry count and acks the
// original delivery.
func (q *Queue) retry(ctx context.Context, msg jetstream.Msg, count int) {
	out := &nats.Msg{Subject: msg.Subject(), Data: msg.Data(), Header: copyHeader(msg.Headers())}
	out.Header.Set(headerRetryCount, strconv.Itoa(count))
	if _, err := q.js.PublishMsg(ctx, out); err != nil {
		slog.Error("nats retry publish failed", "subject", msg.Subject(), "error", err)
		if nakErr := msg.NakWithDelay(time.Second); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "error", ackErr)
	}
}

func (q *Queue) moveToDLQ(ctx context.Context, msg jetstream.Msg, cause error) {
	out := &nats.Msg{Subject: msg.Subject() + dlqSuffix, Data: msg.Data(), Header: copyHeader(msg.Headers())}
	out.Header.Set(headerError, cause.Error())
	if _, err := q.js.PublishMsg(ctx, out); err != nil {
		slog.Error("nats dlq publish failed", "subject", out.Subject, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	slog.Warn("message moved to dead-letter subject", "subject", out.Subject)
	if termErr := msg.Term(); termErr != nil {
		slog.Error("nats term failed", "error", termErr)
	}
}

func retryCount(h nats.Header) int {
	n, err := strconv.Atoi(h.Get(headerRetryCount))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func copyHeader(h nats.Header) nats.Header {
	out := nats.Header{}
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// KeyValue returns the JetStream KV bucket, creating it when missing.
// A zero ttl keeps entries forever.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain gracefully drains all subscriptions before closing.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
