package domain

import (
	"encoding/json"

	"gorm.io/datatypes"
)

func EncodeReplies(replies []Reply) (datatypes.JSON, error) {
	if replies == nil {
		replies = []Reply{}
	}
	raw, err := json.Marshal(replies)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// ReplyList decodes the jsonb replies column. An empty or null column decodes
// to an empty slice.
func (r *ResponseRecord) ReplyList() ([]Reply, error) {
	if len(r.Replies) == 0 {
		return []Reply{}, nil
	}
	var out []Reply
	if err := json.Unmarshal(r.Replies, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func EncodeSafetyResult(res SafetyResult) (datatypes.JSON, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
