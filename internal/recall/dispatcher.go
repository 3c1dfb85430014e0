package recall

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/mq"
	"github.com/calegray/cardflow-backend/internal/pkg/envutil"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

// Dispatcher publishes recall requests onto the delayed exchange. Publishing
// is best-effort relative to the primary reply flow: failures are logged and
// surfaced but must never crash the calling request path.
type Dispatcher interface {
	Dispatch(ctx context.Context, req types.RecallRequest, delayMs int64, headers amqp.Table) error
}

type dispatcher struct {
	log        *logger.Logger
	client     *mq.Client
	routingKey string
}

func NewDispatcher(log *logger.Logger, client *mq.Client) Dispatcher {
	return &dispatcher{
		log:        log.With("component", "RecallDispatcher"),
		client:     client,
		routingKey: envutil.String("RABBITMQ_RECALL_ROUTING_KEY", "recall.session"),
	}
}

func (d *dispatcher) Dispatch(ctx context.Context, req types.RecallRequest, delayMs int64, headers amqp.Table) error {
	if req.SessionID == "" {
		return fmt.Errorf("recall request missing session_id")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode recall request: %w", err)
	}
	delay := millisToDuration(delayMs)
	if err := d.client.Publish(ctx, d.routingKey, body, delay, headers); err != nil {
		d.log.Error("recall publish failed",
			"session_id", req.SessionID,
			"delay_ms", delayMs,
			"error", err,
		)
		return err
	}
	d.log.Info("recall request published",
		"session_id", req.SessionID,
		"reason", req.Reason,
		"delay_ms", delayMs,
	)
	return nil
}
