package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.telegram.org"

// captionLimit is the Bot API cap on document captions, in characters.
const captionLimit = 1024

type Client struct {
	Token      string
	BaseURL    string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

func NewClient(token string, logger logrus.FieldLogger) *Client {
	return &Client{
		Token:   token,
		BaseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type sendMessageReq struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.BaseURL, "/"), c.Token, method)
}

// SendMessage posts plain text; Markdown is left off so report content never breaks parsing.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	jsonBody, err := json.Marshal(sendMessageReq{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMessage"), bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "sendMessage")
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName, caption string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if caption != "" {
		caption = truncateRunes(caption, captionLimit)
		if err := mw.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("document", fileName)
	if err != nil {
		return err
	}
	if _, err := part.Write(fileData); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendDocument"), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, "sendDocument")
}

func (c *Client) do(req *http.Request, method string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram %s returned status: %s, body: %s", method, resp.Status, string(bodyBytes))
	}
	c.logger.WithField("method", method).Debug("telegram request delivered")
	return nil
}

// ChatNotifier delivers notices to one fixed chat.
type ChatNotifier struct {
	client *Client
	chatID int64
}

func NewChatNotifier(client *Client, chatID int64) *ChatNotifier {
	return &ChatNotifier{client: client, chatID: chatID}
}

// Notify sends the document with text as caption, or just the text when there is no document.
func (n *ChatNotifier) Notify(ctx context.Context, text string, document []byte, fileName string) error {
	if len(document) == 0 {
		return n.client.SendMessage(ctx, n.chatID, text)
	}
	return n.client.SendDocument(ctx, n.chatID, document, fileName, text)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	end := 0
	for i := 0; i < limit; i++ {
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
	}
	return s[:end]
}
