package records

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/pkg/dbctx"
	apperrors "github.com/calegray/cardflow-backend/internal/pkg/errors"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

type ResponseRecordRepo interface {
	Create(dbc dbctx.Context, row *types.ResponseRecord) error
	GetBySessionID(dbc dbctx.Context, sessionID string) (*types.ResponseRecord, error)
	// UpdateResponse replaces the rendered text and reply list of an existing
	// record. Used when a session regenerates into the same card; the caller
	// merges the reply list (replies are append-only).
	UpdateResponse(dbc dbctx.Context, sessionID string, replies datatypes.JSON, responseText string) error
	// MarkRecalled flips safety_status to recalled and stores the result.
	MarkRecalled(dbc dbctx.Context, sessionID string, result types.SafetyResult) error
}

type responseRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResponseRecordRepo(db *gorm.DB, log *logger.Logger) ResponseRecordRepo {
	return &responseRecordRepo{db: db, log: log.With("repo", "ResponseRecordRepo")}
}

func (r *responseRecordRepo) Create(dbc dbctx.Context, row *types.ResponseRecord) error {
	if row == nil || row.SessionID == "" {
		return fmt.Errorf("missing session_id: %w", apperrors.ErrInvalidArgument)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if row.SafetyStatus == "" {
		row.SafetyStatus = types.SafetyStatusPending
	}
	if row.Status == "" {
		row.Status = types.ResponseStatusCreated
	}
	if len(row.Replies) == 0 {
		row.Replies = []byte("[]")
	}
	return txx.WithContext(dbc.Ctx).Create(row).Error
}

func (r *responseRecordRepo) GetBySessionID(dbc dbctx.Context, sessionID string) (*types.ResponseRecord, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("missing session_id: %w", apperrors.ErrInvalidArgument)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.ResponseRecord
	err := txx.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *responseRecordRepo) UpdateResponse(dbc dbctx.Context, sessionID string, replies datatypes.JSON, responseText string) error {
	if sessionID == "" {
		return fmt.Errorf("missing session_id: %w", apperrors.ErrInvalidArgument)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ResponseRecord{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"replies":       replies,
			"response_text": responseText,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *responseRecordRepo) MarkRecalled(dbc dbctx.Context, sessionID string, result types.SafetyResult) error {
	if sessionID == "" {
		return fmt.Errorf("missing session_id: %w", apperrors.ErrInvalidArgument)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	raw, err := types.EncodeSafetyResult(result)
	if err != nil {
		return err
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ResponseRecord{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"safety_status": types.SafetyStatusRecalled,
			"safety_result": raw,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
