package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const apiBase = "https://api.telegram.org"

// TelegramClient is the thin Bot-API adapter behind the Messenger boundary.
// It holds no business logic: every method is a single API call with error
// translation into the package sentinels.
type TelegramClient struct {
	token     string
	channelID string
	http      *http.Client
	log       zerolog.Logger
}

// NewTelegramClient builds a client for the given bot token. channelID may
// be empty to disable membership checks.
func NewTelegramClient(token, channelID string, log zerolog.Logger) *TelegramClient {
	return &TelegramClient{
		token:     token,
		channelID: channelID,
		http:      &http.Client{Timeout: 65 * time.Second},
		log:       log.With().Str("component", "telegram").Logger(),
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (c *TelegramClient) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return nil, translateAPIError(apiResp.ErrorCode, apiResp.Description)
	}
	return apiResp.Result, nil
}

func translateAPIError(code int, description string) error {
	desc := strings.ToLower(description)
	switch {
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case strings.Contains(desc, "message to edit not found"),
		strings.Contains(desc, "message to delete not found"),
		strings.Contains(desc, "message can't be deleted"),
		strings.Contains(desc, "message is not modified"):
		return ErrMessageNotFound
	case strings.Contains(desc, "file not found"), strings.Contains(desc, "wrong file_id"):
		return ErrFileNotFound
	default:
		return fmt.Errorf("telegram: %s (code %d)", description, code)
	}
}

func marshalKeyboard(kb Keyboard) string {
	if kb == nil {
		return ""
	}
	type inlineButton struct {
		Text         string `json:"text"`
		CallbackData string `json:"callback_data,omitempty"`
		URL          string `json:"url,omitempty"`
	}
	rows := make([][]inlineButton, 0, len(kb))
	for _, row := range kb {
		r := make([]inlineButton, 0, len(row))
		for _, b := range row {
			btn := inlineButton{Text: b.Text}
			if strings.HasPrefix(b.Action, "http://") || strings.HasPrefix(b.Action, "https://") {
				btn.URL = b.Action
			} else {
				btn.CallbackData = b.Action
			}
			r = append(r, btn)
		}
		rows = append(rows, r)
	}
	raw, _ := json.Marshal(map[string]any{"inline_keyboard": rows})
	return string(raw)
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

func (c *TelegramClient) SendMessage(ctx context.Context, userID int64, text string, kb Keyboard) (MessageRef, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(userID, 10))
	params.Set("text", text)
	if markup := marshalKeyboard(kb); markup != "" {
		params.Set("reply_markup", markup)
	}

	result, err := c.call(ctx, "sendMessage", params)
	if err != nil {
		return "", err
	}
	var msg sentMessage
	if err := json.Unmarshal(result, &msg); err != nil {
		return "", fmt.Errorf("decode sent message: %w", err)
	}
	return MessageRef(strconv.FormatInt(msg.MessageID, 10)), nil
}

func (c *TelegramClient) EditMessage(ctx context.Context, userID int64, ref MessageRef, text string, kb Keyboard) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(userID, 10))
	params.Set("message_id", string(ref))
	params.Set("text", text)
	if markup := marshalKeyboard(kb); markup != "" {
		params.Set("reply_markup", markup)
	}

	_, err := c.call(ctx, "editMessageText", params)
	return err
}

func (c *TelegramClient) DeleteMessage(ctx context.Context, userID int64, ref MessageRef) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(userID, 10))
	params.Set("message_id", string(ref))

	_, err := c.call(ctx, "deleteMessage", params)
	return err
}

func (c *TelegramClient) SendMedia(ctx context.Context, userID int64, kind, payload, caption string, kb Keyboard) (MessageRef, error) {
	var method, field string
	switch kind {
	case "photo":
		method, field = "sendPhoto", "photo"
	case "video":
		method, field = "sendVideo", "video"
	default:
		// URL media degrades to a plain message carrying the link.
		text := payload
		if caption != "" {
			text = caption + "\n" + payload
		}
		return c.SendMessage(ctx, userID, text, kb)
	}

	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(userID, 10))
	params.Set(field, payload)
	if caption != "" {
		params.Set("caption", caption)
	}
	if markup := marshalKeyboard(kb); markup != "" {
		params.Set("reply_markup", markup)
	}

	result, err := c.call(ctx, method, params)
	if err != nil {
		return "", err
	}
	var msg sentMessage
	if err := json.Unmarshal(result, &msg); err != nil {
		return "", fmt.Errorf("decode sent media: %w", err)
	}
	return MessageRef(strconv.FormatInt(msg.MessageID, 10)), nil
}

func (c *TelegramClient) FetchRemoteFile(ctx context.Context, fileID string) ([]byte, error) {
	params := url.Values{}
	params.Set("file_id", fileID)

	result, err := c.call(ctx, "getFile", params)
	if err != nil {
		return nil, err
	}
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(result, &file); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}

	downloadURL := fmt.Sprintf("%s/file/bot%s/%s", apiBase, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *TelegramClient) CheckMembership(ctx context.Context, userID int64) (bool, error) {
	if c.channelID == "" {
		return true, nil
	}

	params := url.Values{}
	params.Set("chat_id", c.channelID)
	params.Set("user_id", strconv.FormatInt(userID, 10))

	result, err := c.call(ctx, "getChatMember", params)
	if err != nil {
		return false, err
	}
	var member struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(result, &member); err != nil {
		return false, fmt.Errorf("decode chat member: %w", err)
	}
	switch member.Status {
	case "creator", "administrator", "member":
		return true, nil
	default:
		return false, nil
	}
}

// ─── Inbound long polling ───────────────────────────────────────────────────

type rawUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Text     string `json:"text"`
		Document *struct {
			FileID   string `json:"file_id"`
			FileName string `json:"file_name"`
		} `json:"document"`
	} `json:"message"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		From struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

// Updates long-polls the Bot API and yields inbound events until ctx is
// cancelled. Each callback query is acknowledged before being yielded so
// the client-side spinner stops even if handling is slow.
func (c *TelegramClient) Updates(ctx context.Context) <-chan Update {
	out := make(chan Update, 64)

	go func() {
		defer close(out)
		var offset int64

		for ctx.Err() == nil {
			params := url.Values{}
			params.Set("timeout", "30")
			params.Set("offset", strconv.FormatInt(offset, 10))

			result, err := c.call(ctx, "getUpdates", params)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Warn().Err(err).Msg("getUpdates failed; backing off")
				select {
				case <-time.After(3 * time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			var updates []rawUpdate
			if err := json.Unmarshal(result, &updates); err != nil {
				c.log.Error().Err(err).Msg("decode updates")
				continue
			}

			for _, raw := range updates {
				offset = raw.UpdateID + 1

				upd, ok := c.convert(ctx, raw)
				if !ok {
					continue
				}
				select {
				case out <- upd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (c *TelegramClient) convert(ctx context.Context, raw rawUpdate) (Update, bool) {
	switch {
	case raw.CallbackQuery != nil:
		ack := url.Values{}
		ack.Set("callback_query_id", raw.CallbackQuery.ID)
		if _, err := c.call(ctx, "answerCallbackQuery", ack); err != nil {
			c.log.Debug().Err(err).Msg("answerCallbackQuery failed")
		}
		return Update{
			UserID:      raw.CallbackQuery.From.ID,
			DisplayName: raw.CallbackQuery.From.FirstName,
			Action:      raw.CallbackQuery.Data,
		}, true

	case raw.Message != nil && raw.Message.From != nil:
		upd := Update{
			UserID:      raw.Message.From.ID,
			DisplayName: raw.Message.From.FirstName,
			Text:        raw.Message.Text,
		}
		if raw.Message.Document != nil {
			upd.Document = &Document{
				FileID:   raw.Message.Document.FileID,
				FileName: raw.Message.Document.FileName,
			}
		}
		return upd, true

	default:
		return Update{}, false
	}
}
