package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/calegray/cardflow-backend/internal/clients/chatsurface"
	"github.com/calegray/cardflow-backend/internal/data/repos/cards"
	"github.com/calegray/cardflow-backend/internal/data/repos/records"
	"github.com/calegray/cardflow-backend/internal/data/repos/testutil"
	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/pkg/dbctx"
	apperrors "github.com/calegray/cardflow-backend/internal/pkg/errors"
)

// scriptedSource replays a fixed event sequence, then either fails or ends
// cleanly.
type scriptedSource struct {
	events []StreamEvent
	err    error
	pos    int
}

func (s *scriptedSource) Recv(ctx context.Context) (StreamEvent, error) {
	if s.pos >= len(s.events) {
		if s.err != nil {
			return StreamEvent{}, s.err
		}
		return StreamEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

type recordingSurface struct {
	handle        string
	msgID         string
	streamedText  map[string]string
	deletedElems  []string
	settingsCalls int
}

func newRecordingSurface() *recordingSurface {
	return &recordingSurface{handle: "card-1", msgID: "reply-1", streamedText: map[string]string{}}
}

func (f *recordingSurface) CreateCard(ctx context.Context, c chatsurface.Card) (string, error) {
	return f.handle, nil
}
func (f *recordingSurface) UpdateCard(ctx context.Context, handle string, c chatsurface.Card, seq int64) error {
	return nil
}
func (f *recordingSurface) StreamUpdateText(ctx context.Context, handle, elementID, content string, seq int64) error {
	f.streamedText[elementID] = content
	return nil
}
func (f *recordingSurface) AddElements(ctx context.Context, handle string, mode chatsurface.AddMode, elements []chatsurface.Element, seq int64, target string) error {
	return nil
}
func (f *recordingSurface) DeleteElement(ctx context.Context, handle, elementID string, seq int64) error {
	f.deletedElems = append(f.deletedElems, elementID)
	return nil
}
func (f *recordingSurface) UpdateCardSettings(ctx context.Context, handle string, patch chatsurface.SettingsPatch, seq int64) error {
	f.settingsCalls++
	return nil
}
func (f *recordingSurface) ReplyToMessage(ctx context.Context, messageID, handle string) (string, error) {
	return f.msgID, nil
}
func (f *recordingSurface) SendToChat(ctx context.Context, chatID, handle string) (string, error) {
	return f.msgID, nil
}
func (f *recordingSurface) DeleteMessage(ctx context.Context, messageID string) error {
	return nil
}

func newTestService(t *testing.T) (ResponseService, *recordingSurface, records.ResponseRecordRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	surface := newRecordingSurface()
	cardCtx := cards.NewCardContextRepo(db, log)
	recs := records.NewResponseRecordRepo(db, log)
	svc := NewResponseService(db, log, surface, cardCtx, recs, nil)
	return svc, surface, recs
}

func session(id string) types.Session {
	return types.Session{
		SessionID:        id,
		ChatID:           "chat-1",
		TriggerMessageID: id,
		BotName:          "helper",
	}
}

func TestRespondWritesRecord(t *testing.T) {
	svc, surface, recs := newTestService(t)
	source := &scriptedSource{events: []StreamEvent{
		{Kind: EventStatus, Text: "searching"},
		{Kind: EventReasoning, Text: "considering sources"},
		{Kind: EventContent, Text: "partial answer"},
		{Kind: EventContent, Text: "partial answer, now complete"},
	}}

	if err := svc.Respond(context.Background(), session("svc-sess-1"), source); err != nil {
		t.Fatalf("Respond() error: %v", err)
	}

	rec, err := recs.GetBySessionID(dbctx.Context{Ctx: context.Background()}, "svc-sess-1")
	if err != nil {
		t.Fatalf("GetBySessionID() error: %v", err)
	}
	if rec.ResponseText != "partial answer, now complete" {
		t.Fatalf("ResponseText = %q", rec.ResponseText)
	}
	if rec.SafetyStatus != types.SafetyStatusPending {
		t.Fatalf("SafetyStatus = %q, want pending", rec.SafetyStatus)
	}
	replies, err := rec.ReplyList()
	if err != nil {
		t.Fatalf("ReplyList() error: %v", err)
	}
	if len(replies) != 1 || replies[0].MessageID != surface.msgID {
		t.Fatalf("replies = %+v", replies)
	}
	if surface.streamedText["response"] != "partial answer, now complete" {
		t.Fatalf("streamed response = %q", surface.streamedText["response"])
	}
}

func TestRespondRewritesLinkReferences(t *testing.T) {
	svc, surface, recs := newTestService(t)
	source := &scriptedSource{events: []StreamEvent{
		{Kind: EventContent, Text: "see (ref: https://a.example/doc) for details"},
	}}

	if err := svc.Respond(context.Background(), session("svc-sess-2"), source); err != nil {
		t.Fatalf("Respond() error: %v", err)
	}

	want := "see [^1] for details"
	if got := surface.streamedText["response"]; got != want {
		t.Fatalf("streamed response = %q, want %q", got, want)
	}
	rec, err := recs.GetBySessionID(dbctx.Context{Ctx: context.Background()}, "svc-sess-2")
	if err != nil {
		t.Fatalf("GetBySessionID() error: %v", err)
	}
	if rec.ResponseText != want {
		t.Fatalf("ResponseText = %q, want %q", rec.ResponseText, want)
	}
}

func TestRespondStreamFailureFinalizesWithError(t *testing.T) {
	svc, surface, recs := newTestService(t)
	source := &scriptedSource{
		events: []StreamEvent{{Kind: EventContent, Text: "half an answer"}},
		err:    errors.New("upstream reset"),
	}

	err := svc.Respond(context.Background(), session("svc-sess-3"), source)
	if err == nil {
		t.Fatalf("Respond() = nil, want error")
	}
	// Error finalization removed the scaffold.
	if len(surface.deletedElems) == 0 {
		t.Fatalf("error path did not finalize the card")
	}
	// No record is written for a failed session.
	if _, err := recs.GetBySessionID(dbctx.Context{Ctx: context.Background()}, "svc-sess-3"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("record lookup = %v, want ErrNotFound", err)
	}
}

func TestRespondRequiresSessionID(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Respond(context.Background(), types.Session{}, &scriptedSource{})
	if !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("Respond() = %v, want ErrInvalidArgument", err)
	}
}

func TestResumeMissingContextIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Resume(context.Background(), session("svc-sess-4"), "unknown-msg", &scriptedSource{})
	if err != nil {
		t.Fatalf("Resume() = %v, want nil", err)
	}
}

func TestRespondUnknownEventKindIsSkipped(t *testing.T) {
	svc, surface, _ := newTestService(t)
	source := &scriptedSource{events: []StreamEvent{
		{Kind: "telemetry", Text: "ignored"},
		{Kind: EventContent, Text: "the answer"},
	}}

	if err := svc.Respond(context.Background(), session("svc-sess-5"), source); err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	if surface.streamedText["response"] != "the answer" {
		t.Fatalf("streamed response = %q", surface.streamedText["response"])
	}
}

func TestResumeAfterRespondUpdatesRecord(t *testing.T) {
	svc, surface, recs := newTestService(t)
	surface.handle = "card-regen"
	surface.msgID = "reply-regen"

	first := &scriptedSource{events: []StreamEvent{
		{Kind: EventContent, Text: "first answer"},
	}}
	if err := svc.Respond(context.Background(), session("svc-sess-6"), first); err != nil {
		t.Fatalf("Respond() error: %v", err)
	}

	// Retry button: regenerate into the same card.
	second := &scriptedSource{events: []StreamEvent{
		{Kind: EventContent, Text: "regenerated answer"},
	}}
	if err := svc.Resume(context.Background(), session("svc-sess-6"), "reply-regen", second); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}

	rec, err := recs.GetBySessionID(dbctx.Context{Ctx: context.Background()}, "svc-sess-6")
	if err != nil {
		t.Fatalf("GetBySessionID() error: %v", err)
	}
	if rec.ResponseText != "regenerated answer" {
		t.Fatalf("ResponseText = %q, want the regenerated text", rec.ResponseText)
	}
	replies, err := rec.ReplyList()
	if err != nil {
		t.Fatalf("ReplyList() error: %v", err)
	}
	// Same card message regenerated: the reply list must not grow.
	if len(replies) != 1 || replies[0].MessageID != "reply-regen" {
		t.Fatalf("replies = %+v, want single reply-regen entry", replies)
	}
	if rec.SafetyStatus != types.SafetyStatusPending {
		t.Fatalf("SafetyStatus = %q, want pending", rec.SafetyStatus)
	}
}
