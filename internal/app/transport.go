package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// AgentWSURL converts the agent's HTTP base URL into its streaming endpoint.
func AgentWSURL(base string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/agent/ws"
}

// InitFrame is the single client-to-server message sent when the streaming
// channel opens. Nothing else goes upstream afterwards.
type InitFrame struct {
	RepoURL        string `json:"repo_url" validate:"required,url"`
	Language       string `json:"language" validate:"required"`
	InstallCommand string `json:"install_command,omitempty"`
	TestCommand    string `json:"test_command,omitempty"`
	Branch         string `json:"branch" validate:"required"`
	BranchName     string `json:"branch_name" validate:"required"`
	MaxIterations  int    `json:"max_iterations,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	GithubToken    string `json:"github_token,omitempty"`
}

// Stream is one open streaming channel. Recv blocks until the next raw frame
// arrives and returns an error once the channel is closed, normally or not.
// Close is idempotent and unblocks any pending Recv.
type Stream interface {
	Recv() ([]byte, error)
	Close() error
}

// StreamDialer opens a stream and delivers the init frame.
type StreamDialer interface {
	Dial(ctx context.Context, frame InitFrame) (Stream, error)
}

// WSDialer dials the healing server's /agent/ws endpoint.
type WSDialer struct {
	URL      string
	Logger   *Logger
	validate *validator.Validate
}

func NewWSDialer(url string, logger *Logger) *WSDialer {
	return &WSDialer{URL: url, Logger: logger, validate: validator.New()}
}

func (d *WSDialer) Dial(ctx context.Context, frame InitFrame) (Stream, error) {
	if err := d.validate.Struct(frame); err != nil {
		return nil, fmt.Errorf("invalid init frame: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send init frame: %w", err)
	}
	if d.Logger != nil {
		d.Logger.Info("stream opened", map[string]interface{}{
			"url":    d.URL,
			"branch": frame.BranchName,
		})
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *wsStream) Recv() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(2 * time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}
