package cards

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/pkg/dbctx"
	apperrors "github.com/calegray/cardflow-backend/internal/pkg/errors"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

type CardContextRepo interface {
	// Save upserts the context keyed by card handle.
	Save(dbc dbctx.Context, row *types.CardContext) error
	GetByHandle(dbc dbctx.Context, cardHandle string) (*types.CardContext, error)
	GetByReplyMessageID(dbc dbctx.Context, replyMessageID string) (*types.CardContext, error)
}

type cardContextRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCardContextRepo(db *gorm.DB, log *logger.Logger) CardContextRepo {
	return &cardContextRepo{db: db, log: log.With("repo", "CardContextRepo")}
}

func (r *cardContextRepo) Save(dbc dbctx.Context, row *types.CardContext) error {
	if row == nil || row.CardHandle == "" {
		return fmt.Errorf("missing card_handle: %w", apperrors.ErrInvalidArgument)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "card_handle"}},
			UpdateAll: true,
		}).
		Create(row).Error
}

func (r *cardContextRepo) GetByHandle(dbc dbctx.Context, cardHandle string) (*types.CardContext, error) {
	if cardHandle == "" {
		return nil, fmt.Errorf("missing card_handle: %w", apperrors.ErrInvalidArgument)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.CardContext
	err := txx.WithContext(dbc.Ctx).
		Where("card_handle = ?", cardHandle).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *cardContextRepo) GetByReplyMessageID(dbc dbctx.Context, replyMessageID string) (*types.CardContext, error) {
	if replyMessageID == "" {
		return nil, fmt.Errorf("missing reply_message_id: %w", apperrors.ErrInvalidArgument)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.CardContext
	err := txx.WithContext(dbc.Ctx).
		Where("reply_message_id = ?", replyMessageID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
