package recall

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/calegray/cardflow-backend/internal/clients/chatsurface"
	"github.com/calegray/cardflow-backend/internal/data/repos/records"
	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/mq"
	"github.com/calegray/cardflow-backend/internal/pkg/ctxutil"
	"github.com/calegray/cardflow-backend/internal/pkg/dbctx"
	apperrors "github.com/calegray/cardflow-backend/internal/pkg/errors"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

// MaxRetry bounds how often a not-ready recall is requeued before it is
// dead-lettered. Retry n waits retrySchedule[n]; counts past the schedule
// reuse the last entry.
const MaxRetry = 3

// RetryCountHeader carries the retry counter on the message, outside the
// JSON payload.
const RetryCountHeader = "x-retry-count"

var retrySchedule = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

// ErrRecordNotReady marks the expected race where the recall request arrived
// before the reply path wrote the response record. It drives the bounded
// requeue and is never dead-lettered directly.
var ErrRecordNotReady = errors.New("response record not ready")

// Consumer drains the recall queue: resolve the session's response record,
// delete every produced message, mark the record recalled. Deliveries are
// independent; the broker may hand several to us concurrently up to the
// prefetch limit.
type Consumer struct {
	log        *logger.Logger
	client     *mq.Client
	dispatcher Dispatcher
	recs       records.ResponseRecordRepo
	surface    chatsurface.Client
}

func NewConsumer(log *logger.Logger, client *mq.Client, dispatcher Dispatcher, recs records.ResponseRecordRepo, surface chatsurface.Client) *Consumer {
	return &Consumer{
		log:        log.With("component", "RecallConsumer"),
		client:     client,
		dispatcher: dispatcher,
		recs:       recs,
		surface:    surface,
	}
}

// Start registers the consumer on the recall queue.
func (c *Consumer) Start() error {
	return c.client.Consume("recall-consumer", c.handleDelivery)
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recall handler panic, dead-lettering", "panic", r)
			_ = d.Nack(false, false)
		}
	}()

	tracer := otel.Tracer("recall")
	ctx, span := tracer.Start(ctx, "recall.handle")
	defer span.End()

	var req types.RecallRequest
	if err := json.Unmarshal(d.Body, &req); err != nil || req.SessionID == "" {
		c.log.Error("unparseable recall payload, dead-lettering", "error", err)
		_ = d.Nack(false, false)
		return
	}
	span.SetAttributes(attribute.String("recall.reason", req.Reason))
	log := c.log.With("session_id", req.SessionID)

	err := c.process(ctx, log, req)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrRecordNotReady):
		c.requeueOrDeadLetter(ctx, log, req, d)
	default:
		// Anything else is treated as non-retryable so a poison message
		// cannot loop through the queue forever.
		log.Error("recall processing failed, dead-lettering", "error", err)
		_ = d.Nack(false, false)
	}
}

// process resolves and executes one recall. Returns ErrRecordNotReady when
// the write path has not caught up yet.
func (c *Consumer) process(ctx context.Context, log *logger.Logger, req types.RecallRequest) error {
	dbc := dbctx.Context{Ctx: ctx}

	rec, err := c.recs.GetBySessionID(dbc, req.SessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return ErrRecordNotReady
	}
	if err != nil {
		return err
	}
	replies, err := rec.ReplyList()
	if err != nil {
		return err
	}
	if len(replies) == 0 {
		return ErrRecordNotReady
	}

	// Deletions authenticate as the bot that sent the original replies.
	ctx = ctxutil.WithBotName(ctx, rec.BotName)

	failed := 0
	for _, reply := range replies {
		if err := c.surface.DeleteMessage(ctx, reply.MessageID); err != nil {
			// Partial recall is acceptable; each failure stays visible.
			failed++
			log.Warn("delete message failed, continuing",
				"message_id", reply.MessageID,
				"bot_name", rec.BotName,
				"error", err,
			)
		}
	}
	if failed > 0 {
		log.Warn("recall completed partially",
			"deleted", len(replies)-failed,
			"failed", failed,
		)
	}

	if err := c.recs.MarkRecalled(dbc, req.SessionID, types.SafetyResult{
		Reason:    req.Reason,
		Detail:    req.Detail,
		CheckedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	log.Info("session recalled", "replies", len(replies), "reason", req.Reason)
	return nil
}

// requeueOrDeadLetter republishes a not-ready recall with the next fixed
// delay and an incremented retry header, acknowledging the current delivery
// (the retry is a new message). Once retries are exhausted the delivery goes
// to the DLQ for operator attention.
func (c *Consumer) requeueOrDeadLetter(ctx context.Context, log *logger.Logger, req types.RecallRequest, d amqp.Delivery) {
	retryCount := headerInt(d.Headers, RetryCountHeader)
	if retryCount >= MaxRetry {
		log.Error("recall retries exhausted, dead-lettering", "retry_count", retryCount)
		_ = d.Nack(false, false)
		return
	}

	delay := retrySchedule[len(retrySchedule)-1]
	if int(retryCount) < len(retrySchedule) {
		delay = retrySchedule[retryCount]
	}
	log.Info("response record not ready, requeueing recall",
		"retry_count", retryCount,
		"delay", delay,
	)
	err := c.dispatcher.Dispatch(ctx, req, delay.Milliseconds(), amqp.Table{
		RetryCountHeader: int64(retryCount + 1),
	})
	if err != nil {
		log.Error("recall requeue failed, dead-lettering", "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func headerInt(headers amqp.Table, key string) int {
	if headers == nil {
		return 0
	}
	switch v := headers[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func millisToDuration(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
