package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"creditchat/backend/internal/conversation"
	"creditchat/backend/internal/ledger"
	"creditchat/backend/internal/metrics"
	"creditchat/backend/internal/models"
	"creditchat/backend/internal/session"
	"creditchat/backend/internal/worker"
	apperrors "creditchat/backend/pkg/errors"
	"creditchat/backend/pkg/logger"
	"creditchat/backend/pkg/secrets"

	"github.com/shopspring/decimal"
)

// displayEscaper normalizes fragments for direct HTML display. Only the
// forwarded copy is escaped; the accumulated reply is persisted raw.
var displayEscaper = strings.NewReplacer(" ", "&nbsp;", "\n", "<br>")

// Config carries relay tuning knobs.
type Config struct {
	// StreamTTL is the hard ceiling on one outward stream. When it expires
	// the stream is forcibly finalized with whatever has accumulated.
	StreamTTL time.Duration
	// WindowSize is the number of turns replayed to the upstream model.
	WindowSize int
}

// Service orchestrates a chat exchange: debit, user-turn append, upstream
// streaming, fragment fan-out, and assistant-turn persistence.
type Service struct {
	sessions *session.Manager
	conv     *conversation.Store
	ledger   *ledger.Service
	secrets  secrets.Manager
	client   *UpstreamClient
	pool     *worker.Pool
	metrics  *metrics.Metrics
	log      *logger.Logger
	cfg      Config
}

// NewService wires the relay together.
func NewService(
	sessions *session.Manager,
	conv *conversation.Store,
	led *ledger.Service,
	sec secrets.Manager,
	client *UpstreamClient,
	pool *worker.Pool,
	log *logger.Logger,
	cfg Config,
) *Service {
	if cfg.StreamTTL <= 0 {
		cfg.StreamTTL = 60 * time.Second
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = conversation.DefaultWindowSize
	}
	return &Service{
		sessions: sessions,
		conv:     conv,
		ledger:   led,
		secrets:  sec,
		client:   client,
		pool:     pool,
		metrics:  metrics.Global(),
		log:      log,
		cfg:      cfg,
	}
}

// SendMessage validates the session, debits the chat cost, and appends the
// user's turn. The debit happens before any storage write, so a rejected
// debit leaves the conversation untouched. The charge is not refunded if
// the later stream fails.
func (s *Service) SendMessage(ctx context.Context, user *models.User, sessionID uint, text string) (*models.ChatTurn, decimal.Decimal, error) {
	sess, err := s.sessions.Resolve(ctx, user, sessionID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, decimal.Zero, apperrors.NewFailedPreconditionError("Message cannot be empty")
	}

	cost := ledger.ChatCost(sess.Bot.Model.CostRate, sess.MaxTokens)
	balance, err := s.ledger.Debit(ctx, user.ID, cost, fmt.Sprintf("Chat message in session %d", sessionID))
	if err != nil {
		return nil, decimal.Zero, err
	}

	turn, err := s.conv.Append(ctx, sessionID, models.SenderUser, text)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		s.log.Warn("Failed to bump session recency", "session_id", sessionID, "error", err.Error())
	}

	return turn, balance, nil
}

// OpenStream validates the session and schedules the upstream relay on the
// worker pool, pushing events into sink as they arrive. cursorID anchors
// the context window; zero means the latest turn. The call returns once the
// relay is scheduled; the stream itself runs detached from ctx so a client
// disconnect never cancels accumulation or persistence.
func (s *Service) OpenStream(ctx context.Context, user *models.User, sessionID uint, cursorID uint, sink Sink) error {
	sess, err := s.sessions.Resolve(ctx, user, sessionID)
	if err != nil {
		return err
	}

	if cursorID == 0 {
		latest, err := s.conv.Latest(ctx, sessionID)
		if err != nil {
			return err
		}
		if latest == nil {
			return apperrors.NewFailedPreconditionError("Session has no message to answer")
		}
		cursorID = latest.ID
	}

	window, err := s.conv.WindowBefore(ctx, sessionID, cursorID, s.cfg.WindowSize)
	if err != nil {
		return err
	}
	if len(window) == 0 {
		return apperrors.NewFailedPreconditionError("Session has no message to answer")
	}

	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		s.log.Warn("Failed to bump session recency", "session_id", sessionID, "error", err.Error())
	}

	model := sess.Bot.Model
	apiKey, err := secrets.ResolveCredential(ctx, s.secrets, model.APIKey)
	if err != nil {
		return apperrors.NewUpstreamFailureError("Failed to resolve model credential")
	}

	req := StreamRequest{
		URL:         model.APIUrl,
		APIKey:      apiKey,
		Model:       model.ModelName,
		Messages:    buildMessages(sess.Bot.Prompt, window),
		Temperature: sess.Bot.Temperature,
		MaxTokens:   sess.MaxTokens,
	}

	if err := s.pool.Submit(func(poolCtx context.Context) {
		s.runStream(poolCtx, sessionID, req, sink)
	}); err != nil {
		s.log.Error("Failed to schedule stream", "session_id", sessionID, "error", err.Error())
		return apperrors.NewInternalError("Server is busy, please try again later")
	}
	return nil
}

// buildMessages maps the bot prompt and the context window onto the
// upstream payload shape.
func buildMessages(prompt string, window []models.ChatTurn) []ChatMessage {
	messages := make([]ChatMessage, 0, len(window)+1)
	if strings.TrimSpace(prompt) != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: prompt})
	}
	for _, turn := range window {
		role := "user"
		if turn.SenderRole == models.SenderAssistant {
			role = "assistant"
		}
		messages = append(messages, ChatMessage{Role: role, Content: turn.Content})
	}
	return messages
}

// runStream executes one relay on a pool worker. The stream is bounded by
// the configured TTL; hitting it finalizes with whatever has accumulated.
func (s *Service) runStream(ctx context.Context, sessionID uint, req StreamRequest, sink Sink) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StreamTTL)
	defer cancel()

	start := time.Now()
	s.metrics.StreamsStarted.Inc()
	defer func() {
		s.metrics.StreamDuration.Observe(time.Since(start).Seconds())
	}()

	log := s.log.WithSessionID(sessionID)

	stream, err := s.client.Open(ctx, req)
	if err != nil {
		s.failStream(log, sink, err)
		return
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		chunk, err := stream.Next()
		if err != nil {
			// A clean EOF or the TTL firing both finalize with what we have;
			// anything else is a transport fault mid-stream.
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				break
			}
			s.failStream(log, sink, apperrors.NewUpstreamFailureError("Model provider connection lost"))
			return
		}

		switch chunk.Kind {
		case ChunkDone:
			// terminal sentinel
		case ChunkMalformed:
			log.Warn("Skipping malformed upstream chunk")
			continue
		case ChunkDelta:
			if chunk.Delta != "" {
				reply.WriteString(chunk.Delta)
				sink.Send(displayEscaper.Replace(chunk.Delta))
			}
			continue
		}
		break
	}

	s.finalize(ctx, log, sessionID, reply.String(), sink)
}

// finalize persists the assistant turn and signals completion. Persistence
// uses a fresh context so a TTL-expired stream still writes its history.
func (s *Service) finalize(ctx context.Context, log *logger.Logger, sessionID uint, reply string, sink Sink) {
	if reply != "" {
		persistCtx := ctx
		if persistCtx.Err() != nil {
			var cancel context.CancelFunc
			persistCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if _, err := s.conv.Append(persistCtx, sessionID, models.SenderAssistant, reply); err != nil {
			log.LogError(err, "Failed to persist assistant turn")
			s.metrics.StreamsFailed.Inc()
			sink.Fail("Failed to store the reply")
			return
		}
	}

	s.metrics.StreamsCompleted.Inc()
	sink.Done()
}

func (s *Service) failStream(log *logger.Logger, sink Sink, err error) {
	s.metrics.StreamsFailed.Inc()
	log.LogError(err, "Completion stream failed")
	sink.Fail(apperrors.FromError(err).Message)
}
