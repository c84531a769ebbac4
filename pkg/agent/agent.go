// Package agent maintains the websocket conversation with an ElevenLabs
// conversational agent. Caller audio goes up, agent audio and transcript
// events come back down.
package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultBaseWSURL is the ElevenLabs conversational agent endpoint.
const DefaultBaseWSURL = "wss://api.elevenlabs.io/v1/convai/conversation"

// EventSink receives transcript events as the conversation progresses.
type EventSink interface {
	OnAgentUtterance(text string)
	OnUserUtterance(text string)
}

// AudioOutput receives agent audio and interruption signals. The telephony
// bridge satisfies this.
type AudioOutput interface {
	Output(pcm []byte)
	Interrupt()
}

// Dialer opens the underlying websocket. Tests swap this out.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, header http.Header) (Conn, error)
}

// Conn is the subset of a websocket connection the conversation needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Config describes one agent conversation.
type Config struct {
	APIKey    string
	AgentID   string
	BaseWSURL string

	Sink  EventSink
	Audio AudioOutput

	// OnConversationID is called once, when the agent reports its
	// conversation identifier.
	OnConversationID func(id string)

	// DynamicVariables are forwarded in the initiation message so the agent
	// can personalize its opening.
	DynamicVariables map[string]string

	Logger *slog.Logger

	Dialer Dialer
}

// Conversation is a live agent session. SendAudio may be called from the
// telephony read path while the internal loop answers pings; writes are
// serialized.
type Conversation struct {
	conn   Conn
	cfg    Config
	logger *slog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

type inboundEvent struct {
	Type string `json:"type"`

	InitiationMetadata *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event,omitempty"`

	AudioEvent *struct {
		AudioBase64 string `json:"audio_base_64"`
		EventID     int    `json:"event_id"`
	} `json:"audio_event,omitempty"`

	AgentResponse *struct {
		Text string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	UserTranscript *struct {
		Text string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	PingEvent *struct {
		EventID int `json:"event_id"`
	} `json:"ping_event,omitempty"`
}

// Dial connects to the agent and starts the conversation. The initiation
// message is sent before the read loop starts, so dynamic variables always
// reach the agent ahead of any audio.
func Dial(ctx context.Context, cfg Config) (*Conversation, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("agent api key is required")
	}
	if strings.TrimSpace(cfg.AgentID) == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = gorillaDialer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	wsURL, err := buildWSURL(cfg.BaseWSURL, cfg.AgentID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("xi-api-key", strings.TrimSpace(cfg.APIKey))

	conn, err := cfg.Dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}

	c := &Conversation{
		conn:   conn,
		cfg:    cfg,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}

	init := map[string]any{
		"type": "conversation_initiation_client_data",
	}
	if len(cfg.DynamicVariables) > 0 {
		init["dynamic_variables"] = cfg.DynamicVariables
	}
	if err := c.writeJSON(init); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send initiation: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// SendAudio forwards one chunk of caller audio to the agent.
func (c *Conversation) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return c.writeJSON(map[string]any{
		"user_audio_chunk": base64.StdEncoding.EncodeToString(pcm),
	})
}

// Done is closed when the read loop exits.
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

// Close ends the conversation. Safe to call more than once and from any
// goroutine.
func (c *Conversation) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
	return nil
}

func (c *Conversation) readLoop() {
	defer close(c.done)
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var ev inboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("agent sent undecodable frame", "error", err)
			continue
		}

		switch ev.Type {
		case "conversation_initiation_metadata":
			if ev.InitiationMetadata != nil && c.cfg.OnConversationID != nil {
				c.cfg.OnConversationID(ev.InitiationMetadata.ConversationID)
			}
		case "audio":
			if ev.AudioEvent == nil || c.cfg.Audio == nil {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(ev.AudioEvent.AudioBase64)
			if err != nil {
				c.logger.Warn("agent audio had invalid base64", "error", err)
				continue
			}
			c.cfg.Audio.Output(pcm)
		case "interruption":
			if c.cfg.Audio != nil {
				c.cfg.Audio.Interrupt()
			}
		case "agent_response":
			if ev.AgentResponse != nil && c.cfg.Sink != nil {
				c.cfg.Sink.OnAgentUtterance(ev.AgentResponse.Text)
			}
		case "user_transcript":
			if ev.UserTranscript != nil && c.cfg.Sink != nil {
				c.cfg.Sink.OnUserUtterance(ev.UserTranscript.Text)
			}
		case "ping":
			pong := map[string]any{"type": "pong"}
			if ev.PingEvent != nil {
				pong["event_id"] = ev.PingEvent.EventID
			}
			if err := c.writeJSON(pong); err != nil {
				c.logger.Debug("pong write failed", "error", err)
			}
		default:
			// Unrecognized event types are ignored so protocol additions
			// do not break live calls.
		}
	}
}

func (c *Conversation) writeJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(textMessage, data)
}

func buildWSURL(base, agentID string) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseWSURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid agent ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
