package chatsurface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calegray/cardflow-backend/internal/config"
	"github.com/calegray/cardflow-backend/internal/pkg/ctxutil"
	"github.com/calegray/cardflow-backend/internal/pkg/envutil"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

// Client is the consumed chat-surface capability. Every card mutation carries
// the caller-assigned sequence; the surface drops writes whose sequence is not
// newer than the last applied one, which is what makes out-of-order network
// completion safe.
type Client interface {
	CreateCard(ctx context.Context, card Card) (string, error)
	UpdateCard(ctx context.Context, handle string, card Card, sequence int64) error
	StreamUpdateText(ctx context.Context, handle, elementID, content string, sequence int64) error
	AddElements(ctx context.Context, handle string, mode AddMode, elements []Element, sequence int64, targetElementID string) error
	DeleteElement(ctx context.Context, handle, elementID string, sequence int64) error
	UpdateCardSettings(ctx context.Context, handle string, patch SettingsPatch, sequence int64) error
	ReplyToMessage(ctx context.Context, messageID, handle string) (string, error)
	SendToChat(ctx context.Context, chatID, handle string) (string, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

type client struct {
	log        *logger.Logger
	baseURL    string
	bots       config.Bots
	httpClient *http.Client
}

func NewClient(log *logger.Logger, bots config.Bots) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimRight(envutil.String("CHAT_SURFACE_BASE_URL", ""), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing CHAT_SURFACE_BASE_URL")
	}
	timeout := envutil.Duration("CHAT_SURFACE_TIMEOUT", 30*time.Second)
	return &client{
		log:        log.With("client", "ChatSurface"),
		baseURL:    baseURL,
		bots:       bots,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type createCardResp struct {
	CardHandle string `json:"card_handle"`
}

type attachResp struct {
	MessageID string `json:"message_id"`
}

func (c *client) CreateCard(ctx context.Context, card Card) (string, error) {
	var out createCardResp
	if err := c.do(ctx, http.MethodPost, "/v1/cards", card, &out); err != nil {
		return "", err
	}
	if out.CardHandle == "" {
		return "", fmt.Errorf("chat surface returned empty card handle")
	}
	return out.CardHandle, nil
}

func (c *client) UpdateCard(ctx context.Context, handle string, card Card, sequence int64) error {
	body := struct {
		Card     Card  `json:"card"`
		Sequence int64 `json:"sequence"`
	}{Card: card, Sequence: sequence}
	return c.do(ctx, http.MethodPut, "/v1/cards/"+handle, body, nil)
}

func (c *client) StreamUpdateText(ctx context.Context, handle, elementID, content string, sequence int64) error {
	body := struct {
		ElementID string `json:"element_id"`
		Content   string `json:"content"`
		Sequence  int64  `json:"sequence"`
	}{ElementID: elementID, Content: content, Sequence: sequence}
	return c.do(ctx, http.MethodPost, "/v1/cards/"+handle+"/stream", body, nil)
}

func (c *client) AddElements(ctx context.Context, handle string, mode AddMode, elements []Element, sequence int64, targetElementID string) error {
	body := struct {
		Mode            AddMode   `json:"mode"`
		Elements        []Element `json:"elements"`
		Sequence        int64     `json:"sequence"`
		TargetElementID string    `json:"target_element_id,omitempty"`
	}{Mode: mode, Elements: elements, Sequence: sequence, TargetElementID: targetElementID}
	return c.do(ctx, http.MethodPost, "/v1/cards/"+handle+"/elements", body, nil)
}

func (c *client) DeleteElement(ctx context.Context, handle, elementID string, sequence int64) error {
	body := struct {
		Sequence int64 `json:"sequence"`
	}{Sequence: sequence}
	return c.do(ctx, http.MethodDelete, "/v1/cards/"+handle+"/elements/"+elementID, body, nil)
}

func (c *client) UpdateCardSettings(ctx context.Context, handle string, patch SettingsPatch, sequence int64) error {
	body := struct {
		Settings SettingsPatch `json:"settings"`
		Sequence int64         `json:"sequence"`
	}{Settings: patch, Sequence: sequence}
	return c.do(ctx, http.MethodPatch, "/v1/cards/"+handle+"/settings", body, nil)
}

func (c *client) ReplyToMessage(ctx context.Context, messageID, handle string) (string, error) {
	body := struct {
		CardHandle string `json:"card_handle"`
	}{CardHandle: handle}
	var out attachResp
	if err := c.do(ctx, http.MethodPost, "/v1/messages/"+messageID+"/reply", body, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

func (c *client) SendToChat(ctx context.Context, chatID, handle string) (string, error) {
	body := struct {
		CardHandle string `json:"card_handle"`
	}{CardHandle: handle}
	var out attachResp
	if err := c.do(ctx, http.MethodPost, "/v1/chats/"+chatID+"/messages", body, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

func (c *client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/messages/"+messageID, nil, nil)
}

func (c *client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx = ctxutil.Default(ctx)

	cred, ok := c.bots.Get(ctxutil.GetBotName(ctx))
	if !ok {
		return fmt.Errorf("no credential for bot %q", ctxutil.GetBotName(ctx))
	}

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat surface %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("chat surface %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
