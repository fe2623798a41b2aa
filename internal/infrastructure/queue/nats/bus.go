package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/resilience"
)

const QueueGroup = "retrievers"

// RetrieveHandler answers one retrieval request.
type RetrieveHandler func(ctx context.Context, question string, overrides domain.Overrides) (*domain.RetrievalResult, error)

// Bus carries retrieval requests over NATS request-reply.
type Bus struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
	timeout  time.Duration
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	RequestTimeout       time.Duration
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func Connect(url, subject string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	requestTimeout := options.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("retrieval-fusion"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
		timeout:  requestTimeout,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Retrieve sends a retrieval request and waits for the reply of any serving worker.
// It lets a front end use the worker fleet as its retrieval service.
func (b *Bus) Retrieve(ctx context.Context, question string, overrides domain.Overrides) (*domain.RetrievalResult, error) {
	payload, err := encodeRequest(question, overrides)
	if err != nil {
		return nil, err
	}

	var msg *nats.Msg
	call := func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		m, err := b.conn.RequestWithContext(reqCtx, b.subject, payload)
		if err != nil {
			return fmt.Errorf("nats request: %w", err)
		}
		msg = m
		return nil
	}
	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats_request", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, markTemporary(err)
	}
	return decodeReply(msg.Data)
}

// Serve answers requests in the retrievers queue group until ctx is cancelled, then
// drains in-flight messages.
func (b *Bus) Serve(ctx context.Context, handler RetrieveHandler) error {
	sub, err := b.conn.QueueSubscribe(b.subject, QueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		handlerCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		reply := b.handle(handlerCtx, msg.Data, handler)
		if err := msg.Respond(reply); err != nil {
			b.logger.Error("nats_respond_failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	b.logger.Info("nats_serving", "subject", b.subject, "queue", QueueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (b *Bus) handle(ctx context.Context, data []byte, handler RetrieveHandler) []byte {
	req, err := decodeRequest(data)
	if err != nil {
		return encodeReply(nil, err)
	}
	result, err := handler(ctx, req.Question, req.Overrides)
	if err != nil {
		b.logger.Warn("nats_retrieve_failed", "error", err)
	}
	return encodeReply(result, err)
}
