// Package vapi places and stops browser voice calls through the Vapi API.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrNoControlURL = errors.New("call has no control url")

type Config struct {
	BaseURL     string
	PublicKey   string
	APIKey      string
	AssistantID string
	Timeout     time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     logrus.FieldLogger
}

func NewClient(cfg Config, logger logrus.FieldLogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Configured reports whether both the public key and the assistant id are set.
func (c *Client) Configured() bool {
	return c.cfg.PublicKey != "" && c.cfg.AssistantID != ""
}

type Voice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

type AssistantOverrides struct {
	FirstMessage   string            `json:"firstMessage,omitempty"`
	Voice          *Voice            `json:"voice,omitempty"`
	VariableValues map[string]string `json:"variableValues,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type StartCallRequest struct {
	SessionID    string
	FirstMessage string
	Voice        *Voice
	Variables    map[string]string
}

type webCallBody struct {
	AssistantID        string             `json:"assistantId"`
	AssistantOverrides AssistantOverrides `json:"assistantOverrides"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
}

type Monitor struct {
	ListenURL  string `json:"listenUrl"`
	ControlURL string `json:"controlUrl"`
}

// Call is the handle returned by the voice service for a started web call.
type Call struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	WebCallURL string  `json:"webCallUrl"`
	Monitor    Monitor `json:"monitor"`
}

// StartWebCall creates a browser call for the configured assistant, tagged with the session id.
func (c *Client) StartWebCall(ctx context.Context, req StartCallRequest) (*Call, error) {
	meta := map[string]string{"sessionId": req.SessionID}
	body := webCallBody{
		AssistantID: c.cfg.AssistantID,
		AssistantOverrides: AssistantOverrides{
			FirstMessage:   req.FirstMessage,
			Voice:          req.Voice,
			VariableValues: req.Variables,
			Metadata:       meta,
		},
		Metadata: meta,
	}

	var call Call
	if err := c.post(ctx, c.cfg.BaseURL+"/call/web", c.cfg.PublicKey, body, &call); err != nil {
		return nil, fmt.Errorf("start web call: %w", err)
	}
	c.logger.WithFields(logrus.Fields{"session_id": req.SessionID, "call_id": call.ID}).Info("voice call started")
	return &call, nil
}

// EndCall asks the live call behind controlURL to hang up. It authorises with the private key when one is set.
func (c *Client) EndCall(ctx context.Context, controlURL string) error {
	if controlURL == "" {
		return ErrNoControlURL
	}
	key := c.cfg.APIKey
	if key == "" {
		key = c.cfg.PublicKey
	}
	if err := c.post(ctx, controlURL, key, map[string]string{"type": "end-call"}, nil); err != nil {
		return fmt.Errorf("end call: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url, key string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vapi returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode vapi response: %w", err)
	}
	return nil
}
