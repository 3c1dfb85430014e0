package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/calegray/cardflow-backend/internal/card"
	"github.com/calegray/cardflow-backend/internal/clients/chatsurface"
	redisclient "github.com/calegray/cardflow-backend/internal/clients/redis"
	"github.com/calegray/cardflow-backend/internal/data/repos/cards"
	"github.com/calegray/cardflow-backend/internal/data/repos/records"
	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/pkg/dbctx"
	apperrors "github.com/calegray/cardflow-backend/internal/pkg/errors"
	"github.com/calegray/cardflow-backend/internal/pkg/keyedmutex"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

// ResponseService drives one AI response session end to end: card creation,
// streamed updates, finalization, and the durable response record the recall
// path joins against.
type ResponseService interface {
	Respond(ctx context.Context, session types.Session, source StreamSource) error
	// Resume picks a crashed session back up from its persisted card context.
	// A missing context is a no-op.
	Resume(ctx context.Context, session types.Session, replyMessageID string, source StreamSource) error
}

type responseService struct {
	db      *gorm.DB
	log     *logger.Logger
	surface chatsurface.Client
	cardCtx cards.CardContextRepo
	recs    records.ResponseRecordRepo
	locks   *keyedmutex.KeyedMutex
	rlock   *redisclient.SessionLock // optional, nil when redis is not configured
}

func NewResponseService(
	db *gorm.DB,
	log *logger.Logger,
	surface chatsurface.Client,
	cardCtx cards.CardContextRepo,
	recs records.ResponseRecordRepo,
	rlock *redisclient.SessionLock,
) ResponseService {
	return &responseService{
		db:      db,
		log:     log.With("service", "ResponseService"),
		surface: surface,
		cardCtx: cardCtx,
		recs:    recs,
		locks:   keyedmutex.New(),
		rlock:   rlock,
	}
}

func (s *responseService) Respond(ctx context.Context, session types.Session, source StreamSource) error {
	if session.SessionID == "" {
		return fmt.Errorf("missing session_id: %w", apperrors.ErrInvalidArgument)
	}
	release, err := s.lockSession(ctx, session.SessionID)
	if err != nil {
		return err
	}
	defer release()

	log := s.log.With("session_id", session.SessionID, "bot_name", session.BotName)
	lc := card.NewReplyLifecycle(s.log, s.surface, s.cardCtx, session)
	lc.MergeContext(sessionContext(session))

	if err := lc.RegisterReply(ctx); err != nil {
		var updateErr *card.UpdateError
		if !errors.As(err, &updateErr) {
			// Creation failed before any remote card existed; the caller may
			// retry, and no error card is emitted.
			return err
		}
		log.Warn("placeholder seeding failed, streaming continues", "error", err)
	}

	if session.TriggerMessageID != "" && !session.IsP2P {
		err = lc.ReplyToMessage(ctx, session.TriggerMessageID)
	} else {
		err = lc.SendToChat(ctx, session.ChatID)
	}
	if err != nil {
		_ = lc.OnError(ctx)
		return fmt.Errorf("attach reply card: %w", err)
	}

	return s.stream(ctx, log, lc, session, source)
}

func (s *responseService) Resume(ctx context.Context, session types.Session, replyMessageID string, source StreamSource) error {
	if session.SessionID == "" || replyMessageID == "" {
		return fmt.Errorf("missing session or reply id: %w", apperrors.ErrInvalidArgument)
	}
	release, err := s.lockSession(ctx, session.SessionID)
	if err != nil {
		return err
	}
	defer release()

	log := s.log.With("session_id", session.SessionID, "resumed", true)
	lc := card.NewReplyLifecycle(s.log, s.surface, s.cardCtx, session)

	if err := lc.LoadFromMessage(ctx, replyMessageID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Info("no persisted card context, nothing to resume", "reply_message_id", replyMessageID)
			return nil
		}
		return err
	}
	return s.stream(ctx, log, lc, session, source)
}

// stream pumps source into the lifecycle. A fresh transformer rewrites link
// references exactly once per chunk before it reaches the card; per-call
// update failures are absorbed so a partial reply survives.
func (s *responseService) stream(ctx context.Context, log *logger.Logger, lc *card.ReplyLifecycle, session types.Session, source StreamSource) error {
	transformer := card.NewContentTransformer()

	var fullText string
	for {
		ev, err := source.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error("stream source failed", "error", err)
			_ = lc.OnError(ctx)
			return fmt.Errorf("stream source: %w", err)
		}

		switch ev.Kind {
		case EventStatus:
			err = lc.UpdateStatus(ctx, ev.Text)
		case EventReasoning:
			err = lc.UpdateThinking(ctx, transformer.Apply(ev.Text))
		case EventContent:
			fullText = transformer.Apply(ev.Text)
			err = lc.UpdateContent(ctx, fullText)
		default:
			log.Warn("unknown stream event kind, skipping", "kind", ev.Kind)
			continue
		}
		if err != nil {
			var updateErr *card.UpdateError
			if errors.As(err, &updateErr) {
				continue
			}
			_ = lc.OnError(ctx)
			return err
		}
	}

	if err := lc.OnSuccess(ctx, fullText); err != nil {
		log.Warn("finalize failed", "error", err)
	}

	return s.writeRecord(ctx, log, lc, session, fullText)
}

// writeRecord creates the session's response record, or, when the session
// regenerated into an existing card, merges into the record written the first
// time around: replies are append-only, the rendered text is replaced.
func (s *responseService) writeRecord(ctx context.Context, log *logger.Logger, lc *card.ReplyLifecycle, session types.Session, fullText string) error {
	if lc.ReplyMessageID() == "" {
		log.Warn("no reply message id, skipping response record")
		return nil
	}
	entry := types.Reply{MessageID: lc.ReplyMessageID(), ContentType: "card", SentAt: time.Now().UTC()}
	dbc := dbctx.Context{Ctx: ctx, Tx: s.db}

	existing, err := s.recs.GetBySessionID(dbc, session.SessionID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		log.Error("loading response record failed", "error", err)
		return fmt.Errorf("load response record: %w", err)
	}

	if existing == nil {
		replies, err := types.EncodeReplies([]types.Reply{entry})
		if err != nil {
			return err
		}
		rec := &types.ResponseRecord{
			SessionID:        session.SessionID,
			TriggerMessageID: session.TriggerMessageID,
			ChatID:           session.ChatID,
			BotName:          session.BotName,
			ResponseType:     "card",
			Replies:          replies,
			ResponseText:     fullText,
		}
		if err := s.recs.Create(dbc, rec); err != nil {
			log.Error("writing response record failed", "error", err)
			return fmt.Errorf("write response record: %w", err)
		}
		return nil
	}

	list, err := existing.ReplyList()
	if err != nil {
		return err
	}
	known := false
	for _, r := range list {
		if r.MessageID == entry.MessageID {
			known = true
			break
		}
	}
	if !known {
		list = append(list, entry)
	}
	replies, err := types.EncodeReplies(list)
	if err != nil {
		return err
	}
	if err := s.recs.UpdateResponse(dbc, session.SessionID, replies, fullText); err != nil {
		log.Error("updating response record failed", "error", err)
		return fmt.Errorf("update response record: %w", err)
	}
	return nil
}

// sessionContext is the metadata merged into the card's persisted context
// bag, so a resumed session can see how it was triggered.
func sessionContext(session types.Session) map[string]string {
	kv := map[string]string{"session_id": session.SessionID}
	if session.TriggerMessageID != "" {
		kv["trigger_message_id"] = session.TriggerMessageID
	}
	if session.RootID != "" {
		kv["root_id"] = session.RootID
	}
	if session.BotName != "" {
		kv["bot_name"] = session.BotName
	}
	return kv
}

// lockSession serializes all mutating work for one session: the in-process
// keyed mutex first, then the cross-instance redis lock when configured.
func (s *responseService) lockSession(ctx context.Context, sessionID string) (func(), error) {
	localRelease := s.locks.Lock(sessionID)
	if s.rlock == nil {
		return localRelease, nil
	}
	remoteRelease, err := s.rlock.Acquire(ctx, sessionID)
	if err != nil {
		localRelease()
		return nil, err
	}
	return func() {
		remoteRelease()
		localRelease()
	}, nil
}
