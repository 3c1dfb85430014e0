package repos

import (
	"gorm.io/gorm"

	"github.com/calegray/cardflow-backend/internal/data/repos/cards"
	"github.com/calegray/cardflow-backend/internal/data/repos/records"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

type CardContextRepo = cards.CardContextRepo
type ResponseRecordRepo = records.ResponseRecordRepo

type Set struct {
	CardContext    CardContextRepo
	ResponseRecord ResponseRecordRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		CardContext:    cards.NewCardContextRepo(db, log),
		ResponseRecord: records.NewResponseRecordRepo(db, log),
	}
}
