package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxsched/voxsched/pkg/agent"
	"github.com/voxsched/voxsched/pkg/bridge"
	"github.com/voxsched/voxsched/pkg/call"
	"github.com/voxsched/voxsched/pkg/gateway/config"
)

// AgentSession is the live conversation opened per stream. Satisfied by
// *agent.Conversation.
type AgentSession interface {
	SendAudio(pcm []byte) error
	Done() <-chan struct{}
	Close() error
}

// AgentDialer opens an agent conversation. Tests inject a fake.
type AgentDialer func(ctx context.Context, cfg agent.Config) (AgentSession, error)

// StreamHandler handles the Twilio media-stream websocket for one call:
// upgrade, reconcile scheduling context, bridge audio to the agent, and run
// the scheduling pipeline when the stream ends.
type StreamHandler struct {
	Config   config.Config
	Registry *call.Registry
	Finisher Finisher
	Logger   *slog.Logger

	DialAgent AgentDialer
}

func defaultDialAgent(ctx context.Context, cfg agent.Config) (AgentSession, error) {
	return agent.Dial(ctx, cfg)
}

func (h StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	b := bridge.New(conn, h.Logger, bridge.Options{
		WriteTimeout: h.Config.BridgeWriteTimeout,
		PollInterval: h.Config.BridgePollInterval,
	})

	var (
		conv     AgentSession
		callSID  string
		streamID string
	)

	// The sender loop runs for the whole stream regardless of whether the
	// agent dial succeeds, so teardown can always wait on Done. conv is
	// written by the read loop below before any audio is forwarded, and the
	// input callback fires synchronously from that same loop.
	b.Start(func(pcm []byte) {
		if conv == nil {
			return
		}
		if err := conv.SendAudio(pcm); err != nil {
			h.Logger.Debug("caller audio dropped", "err", err)
		}
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		if conv == nil {
			if ev, decErr := bridge.DecodeStreamEvent(raw); decErr == nil && ev.Event == bridge.EventStart && ev.Start != nil {
				callSID = ev.Start.CallSID
				streamID = ev.Start.StreamSID
				conv = h.startConversation(r, ev.Start, b)
			}
		}

		if b.HandleMessage(raw) {
			break
		}
	}

	b.Stop()
	if conv != nil {
		_ = conv.Close()
	}
	<-b.Done()

	if streamID == "" {
		// Stream ended before a start event; nothing to finalize.
		return
	}

	h.Finisher.Finish(streamID, callSID)
}

// startConversation promotes the session and dials the agent. A nil return
// means the call proceeds without an agent; the stream loop still drains
// frames so teardown stays uniform.
func (h StreamHandler) startConversation(r *http.Request, start *bridge.StartPayload, b *bridge.Bridge) AgentSession {
	params := h.resolveParams(r, start)
	h.Registry.Promote(start.CallSID, start.StreamSID)
	h.Registry.UpdateContext(start.StreamSID, params.Availability, params.HostEmail, params.HostName)

	dial := h.DialAgent
	if dial == nil {
		dial = defaultDialAgent
	}

	now := time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conv, err := dial(ctx, agent.Config{
		APIKey:    h.Config.AgentAPIKey,
		AgentID:   h.Config.AgentID,
		BaseWSURL: h.Config.AgentWSURL,
		Sink:      transcriptSink{registry: h.Registry, key: start.StreamSID},
		Audio:     b,
		OnConversationID: func(id string) {
			h.Registry.SetConversationID(start.StreamSID, id)
		},
		DynamicVariables: map[string]string{
			"username":         params.HostName,
			"available_time":   params.Availability,
			"current_time_iso": now.Format(time.RFC3339),
			"current_day":      now.Format("Monday"),
			"timezone_info":    h.Config.CalendarTimeZone,
		},
		Logger: h.Logger,
	})
	if err != nil {
		h.Logger.Error("agent dial failed", "call_sid", start.CallSID, "stream_sid", start.StreamSID, "err", err)
		return nil
	}

	h.Logger.Info("media stream connected",
		"call_sid", start.CallSID,
		"stream_sid", start.StreamSID,
		"host_email", params.HostEmail,
	)
	return conv
}

// resolveParams reconciles scheduling context for a stream, in precedence
// order: stream URL query parameters, Twilio custom parameters, context from
// any active session, then the pending entry registered when the call was
// placed. A missing host name falls back to the email local-part, then to a
// generic placeholder, so the agent always has something to say.
func (h StreamHandler) resolveParams(r *http.Request, start *bridge.StartPayload) call.PendingParams {
	q := r.URL.Query()
	params := call.PendingParams{
		Availability: strings.TrimSpace(q.Get("availability")),
		HostEmail:    strings.TrimSpace(q.Get("email")),
		HostName:     strings.TrimSpace(q.Get("name")),
	}

	if start.CustomParameters != nil {
		fill(&params.Availability, start.CustomParameters["availability"])
		fill(&params.HostEmail, start.CustomParameters["email"])
		fill(&params.HostName, start.CustomParameters["name"])
	}

	if params.HostEmail == "" {
		if scanned, ok := h.Registry.ScanParams(); ok {
			fill(&params.Availability, scanned.Availability)
			fill(&params.HostEmail, scanned.HostEmail)
			fill(&params.HostName, scanned.HostName)
		}
	}

	if params.HostEmail == "" && start.CallSID != "" {
		if pend, ok := h.Registry.PendingParams(start.CallSID); ok {
			fill(&params.Availability, pend.Availability)
			fill(&params.HostEmail, pend.HostEmail)
			fill(&params.HostName, pend.HostName)
		}
	}

	if params.HostName == "" {
		params.HostName = call.DeriveHostName(params.HostEmail)
	}
	return params
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

// transcriptSink appends agent events to the session transcript in arrival
// order.
type transcriptSink struct {
	registry *call.Registry
	key      string
}

func (s transcriptSink) OnAgentUtterance(text string) {
	_ = s.registry.Append(s.key, call.RoleAgent, text)
}

func (s transcriptSink) OnUserUtterance(text string) {
	_ = s.registry.Append(s.key, call.RoleUser, text)
}

var _ AgentSession = (*agent.Conversation)(nil)
