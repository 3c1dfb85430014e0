package card

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/datatypes"

	"github.com/calegray/cardflow-backend/internal/clients/chatsurface"
	"github.com/calegray/cardflow-backend/internal/data/repos/cards"
	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/pkg/ctxutil"
	"github.com/calegray/cardflow-backend/internal/pkg/dbctx"
	apperrors "github.com/calegray/cardflow-backend/internal/pkg/errors"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

// Stage is the lifecycle state of one remote card.
type Stage string

const (
	StageUninitialized    Stage = "uninitialized"
	StageCreated          Stage = "created"
	StageResumed          Stage = "resumed"
	StageStreaming        Stage = "streaming"
	StageFinalizedSuccess Stage = "finalized_success"
	StageFinalizedError   Stage = "finalized_error"
)

// Fixed element ids inside the card. The surface addresses stream updates and
// deletions by these.
const (
	elemDivider     = "divider"
	elemPlaceholder = "placeholder"
	elemReasoning   = "reasoning"
	elemResponse    = "response"
	elemThumbsUp    = "action_thumbs_up"
	elemThumbsDown  = "action_thumbs_down"
	elemRetry       = "action_retry"
	elemErrorNote   = "error_note"
)

const (
	placeholderText = "Thinking..."
	errorText       = "Something went wrong generating this reply. Tap retry to try again."
	summaryLimit    = 120
)

var reasoningMarkerPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ReplyLifecycle owns one AI response session's remote card: creation,
// streamed updates, finalization, and crash resume. It is a single-owner
// object; all mutating calls must come from one logical caller (or be
// externally serialized), because sequence numbers are allocated in call
// order.
type ReplyLifecycle struct {
	log     *logger.Logger
	client  chatsurface.Client
	store   cards.CardContextRepo
	session types.Session

	seq            *SequenceAllocator
	handle         string
	replyMessageID string
	stage          Stage

	hasReasoning       bool
	hasResponse        bool
	placeholderRemoved bool

	context map[string]string
}

func NewReplyLifecycle(log *logger.Logger, client chatsurface.Client, store cards.CardContextRepo, session types.Session) *ReplyLifecycle {
	return &ReplyLifecycle{
		log: log.With(
			"component", "ReplyLifecycle",
			"session_id", session.SessionID,
		),
		client:  client,
		store:   store,
		session: session,
		seq:     NewSequenceAllocator(0),
		stage:   StageUninitialized,
		context: make(map[string]string),
	}
}

// Stage reports the current lifecycle stage.
func (l *ReplyLifecycle) Stage() Stage { return l.stage }

// CardHandle is empty until creation succeeds.
func (l *ReplyLifecycle) CardHandle() string { return l.handle }

// ReplyMessageID is empty until the card is attached to a message.
func (l *ReplyLifecycle) ReplyMessageID() string { return l.replyMessageID }

// MergeContext merges key/values into the card's free-form context bag. The
// bag is written through with every persisted step and restored on resume.
func (l *ReplyLifecycle) MergeContext(kv map[string]string) {
	for k, v := range kv {
		l.context[k] = v
	}
}

// Context returns a copy of the card's context bag.
func (l *ReplyLifecycle) Context() map[string]string {
	out := make(map[string]string, len(l.context))
	for k, v := range l.context {
		out[k] = v
	}
	return out
}

// Create issues the card-creation call with no prior content. On transport
// failure the state stays Uninitialized so the caller may retry.
func (l *ReplyLifecycle) Create(ctx context.Context) error {
	if l.handle != "" {
		return ErrAlreadyExists
	}
	if l.stage != StageUninitialized {
		return ErrAlreadyExists
	}
	ctx = l.withBot(ctx)

	handle, err := l.client.CreateCard(ctx, chatsurface.Card{
		Elements: []chatsurface.Element{},
		Settings: chatsurface.CardSettings{StreamingMode: true},
	})
	if err != nil {
		return &CreateError{Err: err}
	}
	l.handle = handle
	l.persist(ctx)
	return nil
}

// RegisterReply creates the card and seeds the initial placeholder elements
// (a divider and a "thinking" placeholder).
func (l *ReplyLifecycle) RegisterReply(ctx context.Context) error {
	if err := l.Create(ctx); err != nil {
		return err
	}
	ctx = l.withBot(ctx)
	seq := l.seq.Next()
	if err := l.client.AddElements(ctx, l.handle, chatsurface.AddModeAppend, []chatsurface.Element{
		{ID: elemDivider, Type: chatsurface.ElementTypeDivider},
		{ID: elemPlaceholder, Type: chatsurface.ElementTypeText, Text: placeholderText},
	}, seq, ""); err != nil {
		l.log.Warn("seeding placeholder elements failed", "card_handle", l.handle, "sequence", seq, "error", err)
		return &UpdateError{Op: "register_reply", Err: err}
	}
	l.stage = StageCreated
	l.persist(ctx)
	return nil
}

// LoadFromMessage reconstructs the lifecycle from the persisted context of a
// previously attached reply, entering the Resumed stage with the persisted
// sequence watermark. Returns apperrors.ErrNotFound when no context exists;
// callers treat that as a no-op.
func (l *ReplyLifecycle) LoadFromMessage(ctx context.Context, replyMessageID string) error {
	row, err := l.store.GetByReplyMessageID(dbctx.Context{Ctx: ctx}, replyMessageID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("load card context: %w", err)
	}
	l.handle = row.CardHandle
	l.replyMessageID = row.ReplyMessageID
	l.seq = NewSequenceAllocator(row.Sequence)
	if l.session.ChatID == "" {
		l.session.ChatID = row.ChatID
	}
	if len(row.Context) > 0 {
		restored := map[string]string{}
		if err := json.Unmarshal(row.Context, &restored); err != nil {
			l.log.Warn("decoding card context bag failed", "card_handle", l.handle, "error", err)
		} else {
			l.MergeContext(restored)
		}
	}

	ctx = l.withBot(ctx)
	seq := l.seq.Next()
	if err := l.client.AddElements(ctx, l.handle, chatsurface.AddModeAppend, []chatsurface.Element{
		{ID: elemDivider, Type: chatsurface.ElementTypeDivider},
		{ID: elemPlaceholder, Type: chatsurface.ElementTypeText, Text: placeholderText},
	}, seq, ""); err != nil {
		l.log.Warn("re-seeding placeholder elements failed", "card_handle", l.handle, "sequence", seq, "error", err)
	}
	l.stage = StageResumed
	l.persist(ctx)
	return nil
}

// UpdateThinking streams reasoning content. The first call materializes the
// reasoning region immediately before the divider; every call, including the
// materialization, consumes one sequence number at issue time.
func (l *ReplyLifecycle) UpdateThinking(ctx context.Context, content string) error {
	return l.updateRegion(ctx, elemReasoning, chatsurface.ElementTypeReasoning, &l.hasReasoning, content)
}

// UpdateContent streams response content into the markdown region.
func (l *ReplyLifecycle) UpdateContent(ctx context.Context, content string) error {
	return l.updateRegion(ctx, elemResponse, chatsurface.ElementTypeMarkdown, &l.hasResponse, content)
}

func (l *ReplyLifecycle) updateRegion(ctx context.Context, elementID, elementType string, materialized *bool, content string) error {
	if l.handle == "" {
		return ErrNotCreated
	}
	if l.finalized() {
		return nil
	}
	ctx = l.withBot(ctx)

	if !*materialized {
		// Flag flips at issue time and never flips back, so a failed insert
		// is not retried with a second element.
		*materialized = true
		seq := l.seq.Next()
		if err := l.client.AddElements(ctx, l.handle, chatsurface.AddModeInsertBefore, []chatsurface.Element{
			{ID: elementID, Type: elementType},
		}, seq, elemDivider); err != nil {
			l.log.Warn("region materialization failed",
				"card_handle", l.handle,
				"element_id", elementID,
				"sequence", seq,
				"error", err,
			)
		}
		l.persist(ctx)
	}
	l.stage = StageStreaming

	seq := l.seq.Next()
	if err := l.client.StreamUpdateText(ctx, l.handle, elementID, content, seq); err != nil {
		l.log.Warn("stream update failed",
			"card_handle", l.handle,
			"element_id", elementID,
			"sequence", seq,
			"error", err,
		)
		return &UpdateError{Op: "stream_update", Err: err}
	}
	return nil
}

// UpdateStatus rewrites the placeholder text. It is a no-op once either
// region has materialized (the placeholder is on its way out by then) or
// after finalization removed it.
func (l *ReplyLifecycle) UpdateStatus(ctx context.Context, message string) error {
	if l.handle == "" {
		return ErrNotCreated
	}
	if l.hasReasoning || l.hasResponse || l.placeholderRemoved || l.finalized() {
		return nil
	}
	ctx = l.withBot(ctx)
	seq := l.seq.Next()
	if err := l.client.StreamUpdateText(ctx, l.handle, elemPlaceholder, message, seq); err != nil {
		l.log.Warn("status update failed", "card_handle", l.handle, "sequence", seq, "error", err)
		return &UpdateError{Op: "update_status", Err: err}
	}
	return nil
}

// ReplyToMessage attaches the card as a reply to messageID. Exactly one of
// ReplyToMessage/SendToChat may be called, once per session.
func (l *ReplyLifecycle) ReplyToMessage(ctx context.Context, messageID string) error {
	return l.attach(ctx, func(ctx context.Context) (string, error) {
		return l.client.ReplyToMessage(ctx, messageID, l.handle)
	})
}

// SendToChat attaches the card as a fresh message in chatID.
func (l *ReplyLifecycle) SendToChat(ctx context.Context, chatID string) error {
	return l.attach(ctx, func(ctx context.Context) (string, error) {
		return l.client.SendToChat(ctx, chatID, l.handle)
	})
}

func (l *ReplyLifecycle) attach(ctx context.Context, send func(context.Context) (string, error)) error {
	if l.handle == "" {
		return ErrNotCreated
	}
	if l.replyMessageID != "" {
		return ErrAlreadyExists
	}
	ctx = l.withBot(ctx)
	messageID, err := send(ctx)
	if err != nil {
		return fmt.Errorf("attach card: %w", err)
	}
	l.replyMessageID = messageID
	l.persist(ctx)
	return nil
}

// OnSuccess finalizes the card: removes the placeholder and divider, writes a
// short summary derived from fullText, disables streaming mode, and appends
// the interactive follow-up elements. Writing the ResponseRecord from
// fullText is the caller's job. No-op when the card was never created or the
// lifecycle already finalized.
func (l *ReplyLifecycle) OnSuccess(ctx context.Context, fullText string) error {
	if l.handle == "" || l.finalized() {
		return nil
	}
	l.finalize(ctx, Summarize(fullText), "")
	l.stage = StageFinalizedSuccess
	l.persist(l.withBot(ctx))
	return nil
}

// OnError finalizes with a fixed error message instead of a summary. Same
// no-op rules as OnSuccess: a session that failed before creation never gets
// an error card.
func (l *ReplyLifecycle) OnError(ctx context.Context) error {
	if l.handle == "" || l.finalized() {
		return nil
	}
	l.finalize(ctx, "", errorText)
	l.stage = StageFinalizedError
	l.persist(l.withBot(ctx))
	return nil
}

// finalize performs the shared cleanup sequence. Individual call failures are
// logged and do not stop the remaining steps; a partially finalized card is
// preferable to a card stuck in streaming dress.
func (l *ReplyLifecycle) finalize(ctx context.Context, summary, appendText string) {
	ctx = l.withBot(ctx)

	for _, elementID := range []string{elemPlaceholder, elemDivider} {
		seq := l.seq.Next()
		if err := l.client.DeleteElement(ctx, l.handle, elementID, seq); err != nil {
			l.log.Warn("removing scaffold element failed",
				"card_handle", l.handle,
				"element_id", elementID,
				"sequence", seq,
				"error", err,
			)
		}
	}
	l.placeholderRemoved = true

	if appendText != "" {
		seq := l.seq.Next()
		if err := l.client.AddElements(ctx, l.handle, chatsurface.AddModeAppend, []chatsurface.Element{
			{ID: elemErrorNote, Type: chatsurface.ElementTypeMarkdown, Markdown: appendText},
		}, seq, ""); err != nil {
			l.log.Warn("appending closing text failed", "card_handle", l.handle, "sequence", seq, "error", err)
		}
	}

	streamingOff := false
	seq := l.seq.Next()
	if err := l.client.UpdateCardSettings(ctx, l.handle, chatsurface.SettingsPatch{StreamingMode: &streamingOff, Summary: summary}, seq); err != nil {
		l.log.Warn("disabling streaming mode failed", "card_handle", l.handle, "sequence", seq, "error", err)
	}

	seq = l.seq.Next()
	if err := l.client.AddElements(ctx, l.handle, chatsurface.AddModeAppend, []chatsurface.Element{
		{ID: elemThumbsUp, Type: chatsurface.ElementTypeButton, Action: "thumbs_up", Label: "👍"},
		{ID: elemThumbsDown, Type: chatsurface.ElementTypeButton, Action: "thumbs_down", Label: "👎"},
		{ID: elemRetry, Type: chatsurface.ElementTypeButton, Action: "retry", Label: "Retry"},
	}, seq, ""); err != nil {
		l.log.Warn("appending follow-up actions failed", "card_handle", l.handle, "sequence", seq, "error", err)
	}
}

func (l *ReplyLifecycle) finalized() bool {
	return l.stage == StageFinalizedSuccess || l.stage == StageFinalizedError
}

func (l *ReplyLifecycle) withBot(ctx context.Context) context.Context {
	ctx = ctxutil.Default(ctx)
	if l.session.BotName != "" && ctxutil.GetBotName(ctx) == "" {
		ctx = ctxutil.WithBotName(ctx, l.session.BotName)
	}
	return ctx
}

// persist writes the durable projection. Persistence failures are logged but
// never interrupt an in-progress stream.
func (l *ReplyLifecycle) persist(ctx context.Context) {
	if l.handle == "" {
		return
	}
	var bag datatypes.JSON
	if len(l.context) > 0 {
		raw, err := json.Marshal(l.context)
		if err != nil {
			l.log.Warn("encoding card context bag failed", "card_handle", l.handle, "error", err)
		} else {
			bag = datatypes.JSON(raw)
		}
	}
	err := l.store.Save(dbctx.Context{Ctx: ctx}, &types.CardContext{
		CardHandle:     l.handle,
		ReplyMessageID: l.replyMessageID,
		ChatID:         l.session.ChatID,
		Sequence:       l.seq.Current(),
		Context:        bag,
	})
	if err != nil {
		l.log.Warn("persisting card context failed", "card_handle", l.handle, "error", err)
	}
}

// Summarize strips reasoning markers from text and clips it for the card's
// closing summary.
func Summarize(text string) string {
	out := reasoningMarkerPattern.ReplaceAllString(text, "")
	out = strings.TrimSpace(out)
	runes := []rune(out)
	if len(runes) > summaryLimit {
		out = string(runes[:summaryLimit]) + "…"
	}
	return out
}
