package records_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calegray/cardflow-backend/internal/data/repos/records"
	"github.com/calegray/cardflow-backend/internal/data/repos/testutil"
	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/pkg/dbctx"
	apperrors "github.com/calegray/cardflow-backend/internal/pkg/errors"
)

func TestResponseRecordCreateAndGet(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := records.NewResponseRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	replies, err := types.EncodeReplies([]types.Reply{
		{MessageID: "msg-1", ContentType: "card", SentAt: time.Now().UTC()},
	})
	if err != nil {
		t.Fatalf("encode replies: %v", err)
	}
	if err := repo.Create(dbc, &types.ResponseRecord{
		SessionID:        "sess-1",
		TriggerMessageID: "trigger-1",
		ChatID:           "chat-1",
		BotName:          "helper",
		ResponseType:     "answer",
		Replies:          replies,
		ResponseText:     "full answer text",
	}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.GetBySessionID(dbc, "sess-1")
	if err != nil {
		t.Fatalf("GetBySessionID() error: %v", err)
	}
	if got.SafetyStatus != types.SafetyStatusPending {
		t.Fatalf("SafetyStatus = %q, want pending", got.SafetyStatus)
	}
	if got.Status != types.ResponseStatusCreated {
		t.Fatalf("Status = %q, want created", got.Status)
	}
	list, err := got.ReplyList()
	if err != nil {
		t.Fatalf("ReplyList() error: %v", err)
	}
	if len(list) != 1 || list[0].MessageID != "msg-1" {
		t.Fatalf("replies = %+v", list)
	}
}

func TestResponseRecordMarkRecalled(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := records.NewResponseRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	if err := repo.Create(dbc, &types.ResponseRecord{
		SessionID: "sess-2",
		ChatID:    "chat-1",
		BotName:   "helper",
	}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	checked := time.Now().UTC()
	if err := repo.MarkRecalled(dbc, "sess-2", types.SafetyResult{
		Reason:    "policy_violation",
		Detail:    "manual review",
		CheckedAt: checked,
	}); err != nil {
		t.Fatalf("MarkRecalled() error: %v", err)
	}

	got, err := repo.GetBySessionID(dbc, "sess-2")
	if err != nil {
		t.Fatalf("GetBySessionID() error: %v", err)
	}
	if got.SafetyStatus != types.SafetyStatusRecalled {
		t.Fatalf("SafetyStatus = %q, want recalled", got.SafetyStatus)
	}
	if len(got.SafetyResult) == 0 {
		t.Fatalf("SafetyResult not stored")
	}
}

func TestResponseRecordMarkRecalledMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := records.NewResponseRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	err := repo.MarkRecalled(dbc, "missing", types.SafetyResult{Reason: "x"})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("MarkRecalled(missing) = %v, want ErrNotFound", err)
	}
}

func TestResponseRecordGetMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := records.NewResponseRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	if _, err := repo.GetBySessionID(dbc, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("GetBySessionID(missing) = %v, want ErrNotFound", err)
	}
}

func TestResponseRecordUpdateResponse(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := records.NewResponseRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	firstReplies, err := types.EncodeReplies([]types.Reply{
		{MessageID: "msg-1", ContentType: "card", SentAt: time.Now().UTC()},
	})
	if err != nil {
		t.Fatalf("encode replies: %v", err)
	}
	if err := repo.Create(dbc, &types.ResponseRecord{
		SessionID:    "sess-3",
		ChatID:       "chat-1",
		BotName:      "helper",
		Replies:      firstReplies,
		ResponseText: "first answer",
	}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	merged, err := types.EncodeReplies([]types.Reply{
		{MessageID: "msg-1", ContentType: "card", SentAt: time.Now().UTC()},
		{MessageID: "msg-2", ContentType: "card", SentAt: time.Now().UTC()},
	})
	if err != nil {
		t.Fatalf("encode replies: %v", err)
	}
	if err := repo.UpdateResponse(dbc, "sess-3", merged, "regenerated answer"); err != nil {
		t.Fatalf("UpdateResponse() error: %v", err)
	}

	got, err := repo.GetBySessionID(dbc, "sess-3")
	if err != nil {
		t.Fatalf("GetBySessionID() error: %v", err)
	}
	if got.ResponseText != "regenerated answer" {
		t.Fatalf("ResponseText = %q", got.ResponseText)
	}
	list, err := got.ReplyList()
	if err != nil {
		t.Fatalf("ReplyList() error: %v", err)
	}
	if len(list) != 2 || list[1].MessageID != "msg-2" {
		t.Fatalf("replies = %+v", list)
	}
}

func TestResponseRecordUpdateResponseMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := records.NewResponseRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	raw, err := types.EncodeReplies(nil)
	if err != nil {
		t.Fatalf("encode replies: %v", err)
	}
	if err := repo.UpdateResponse(dbc, "missing", raw, "text"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("UpdateResponse(missing) = %v, want ErrNotFound", err)
	}
}
