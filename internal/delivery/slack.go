package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"digestbot/internal/summary"
	logx "digestbot/pkg/logx"
)

type SlackConfig struct {
	APIURL  string
	Token   string
	Channel string

	// HTTPTimeout bounds a single HTTP exchange. <=0 means 30s.
	HTTPTimeout time.Duration
}

// Slack posts the summary as a Block Kit message via chat.postMessage.
type Slack struct {
	apiURL  string
	token   string
	channel string
	httpc   *http.Client
	log     logx.Logger
}

func NewSlack(cfg SlackConfig, log logx.Logger) *Slack {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Slack{
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		token:   cfg.Token,
		channel: cfg.Channel,
		httpc:   &http.Client{Timeout: timeout},
		log:     log.With(logx.String("comp", "delivery.slack")),
	}
}

func (s *Slack) Name() string             { return "slack" }
func (s *Slack) Dialect() summary.Dialect { return summary.DialectSlack }

// slackMessage is the Block Kit payload for chat.postMessage. Text doubles
// as the notification fallback line.
type slackMessage struct {
	Channel string       `json:"channel"`
	Text    string       `json:"text"`
	Blocks  []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// slackResponse carries Slack's own success flag. A 200 with ok=false is
// still a failed delivery.
type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Slack) Deliver(ctx context.Context, summaryText string, hasNotifications bool) error {
	title := Title(time.Now())
	msg := slackMessage{
		Channel: s.channel,
		Text:    title,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: title}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: body(summaryText, hasNotifications)}},
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("slack read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out slackResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return fmt.Errorf("slack decode response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("slack API error: %s", out.Error)
	}

	s.log.Info("summary delivered", logx.String("channel", s.channel))
	return nil
}
