package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creditchat/backend/internal/conversation"
	"creditchat/backend/internal/ledger"
	"creditchat/backend/internal/models"
	"creditchat/backend/internal/session"
	"creditchat/backend/internal/testutil"
	"creditchat/backend/internal/worker"
	apperrors "creditchat/backend/pkg/errors"
	"creditchat/backend/pkg/logger"
	"creditchat/backend/pkg/secrets"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func relayLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

type relayFixture struct {
	db      *gorm.DB
	svc     *Service
	conv    *conversation.Store
	ledger  *ledger.Service
	user    *models.User
	session *models.Session
	pool    *worker.Pool
}

// newRelayFixture stands up the full chat pipeline against the given
// upstream handler.
func newRelayFixture(t *testing.T, upstream http.Handler) *relayFixture {
	t.Helper()
	return newRelayFixtureTTL(t, upstream, 5*time.Second)
}

func newRelayFixtureTTL(t *testing.T, upstream http.Handler, ttl time.Duration) *relayFixture {
	t.Helper()

	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	db := testutil.OpenDB(t)
	log := relayLogger()

	user := &models.User{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret123",
		Credits:  decimal.NewFromInt(100),
	}
	require.NoError(t, db.Create(user).Error)

	model := &models.Model{
		ModelName: "gpt-test",
		APIUrl:    server.URL,
		APIKey:    "sk-test",
		CostRate:  10,
	}
	require.NoError(t, db.Create(model).Error)

	bot := &models.Bot{
		BotName:   "helper",
		BotType:   models.BotTypePublic,
		CreatorID: user.ID,
		ModelID:   model.ID,
		Prompt:    "You are helpful.",
		MaxTokens: 512,
		Active:    true,
	}
	require.NoError(t, db.Create(bot).Error)

	sess := &models.Session{UserID: user.ID, BotID: bot.ID, MaxTokens: bot.MaxTokens}
	require.NoError(t, db.Create(sess).Error)

	conv := conversation.NewStore(db)
	led := ledger.NewService(db)
	pool := worker.NewPool(2, 8, log)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	client := NewUpstreamClient(server.Client(), nil, log)
	svc := NewService(
		session.NewManager(db),
		conv,
		led,
		secrets.StaticManager{},
		client,
		pool,
		log,
		Config{StreamTTL: ttl, WindowSize: 20},
	)

	return &relayFixture{db: db, svc: svc, conv: conv, ledger: led, user: user, session: sess, pool: pool}
}

// drain collects sink events until the channel closes or the test times out.
func drain(t *testing.T, sink *ChannelSink) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sink.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("sink never terminated")
		}
	}
}

// sseHandler writes the given data lines as an event stream.
func sseHandler(lines ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
	})
}

func TestStreamForwardsFragmentAndPersistsTurn(t *testing.T) {
	f := newRelayFixture(t, sseHandler(
		`{"choices":[{"delta":{"content":"Hi"}}]}`,
		`[DONE]`,
	))
	ctx := context.Background()

	_, _, err := f.svc.SendMessage(ctx, f.user, f.session.ID, "hello")
	require.NoError(t, err)

	sink := NewChannelSink(16)
	require.NoError(t, f.svc.OpenStream(ctx, f.user, f.session.ID, 0, sink))

	events := drain(t, sink)
	require.Len(t, events, 2)
	assert.Equal(t, EventFragment, events[0].Type)
	assert.Equal(t, "Hi", events[0].Data)
	assert.Equal(t, EventDone, events[1].Type)

	turns, err := f.conv.History(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, models.SenderAssistant, turns[1].SenderRole)
	assert.Equal(t, "Hi", turns[1].Content)
}

func TestStreamEscapesForwardedFragmentsOnly(t *testing.T) {
	f := newRelayFixture(t, sseHandler(
		`{"choices":[{"delta":{"content":"a b\nc"}}]}`,
		`[DONE]`,
	))
	ctx := context.Background()

	_, _, err := f.svc.SendMessage(ctx, f.user, f.session.ID, "hello")
	require.NoError(t, err)

	sink := NewChannelSink(16)
	require.NoError(t, f.svc.OpenStream(ctx, f.user, f.session.ID, 0, sink))

	events := drain(t, sink)
	require.Len(t, events, 2)
	assert.Equal(t, "a&nbsp;b<br>c", events[0].Data, "the forwarded copy is display-escaped")

	turns, err := f.conv.History(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, "a b\nc", turns[1].Content, "the persisted reply stays raw")
}

func TestStreamSkipsMalformedChunks(t *testing.T) {
	f := newRelayFixture(t, sseHandler(
		`{not json`,
		`{"choices":[{"delta":{"content":"ok"}}]}`,
		`[DONE]`,
	))
	ctx := context.Background()

	_, _, err := f.svc.SendMessage(ctx, f.user, f.session.ID, "hello")
	require.NoError(t, err)

	sink := NewChannelSink(16)
	require.NoError(t, f.svc.OpenStream(ctx, f.user, f.session.ID, 0, sink))

	events := drain(t, sink)
	require.Len(t, events, 2)
	assert.Equal(t, "ok", events[0].Data)
	assert.Equal(t, EventDone, events[1].Type)
}

func TestStreamEndWithoutSentinelStillCompletes(t *testing.T) {
	f := newRelayFixture(t, sseHandler(
		`{"choices":[{"delta":{"content":"partial"}}]}`,
	))
	ctx := context.Background()

	_, _, err := f.svc.SendMessage(ctx, f.user, f.session.ID, "hello")
	require.NoError(t, err)

	sink := NewChannelSink(16)
	require.NoError(t, f.svc.OpenStream(ctx, f.user, f.session.ID, 0, sink))

	events := drain(t, sink)
	require.NotEmpty(t, events)
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	turns, err := f.conv.History(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "partial", turns[1].Content)
}

func TestStreamTTLExpiryFinalizesWithAccumulatedText(t *testing.T) {
	// The upstream sends one fragment and then stalls until the relay
	// gives up; the stream must still complete with what arrived.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"partial"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	f := newRelayFixtureTTL(t, handler, 300*time.Millisecond)
	ctx := context.Background()

	_, _, err := f.svc.SendMessage(ctx, f.user, f.session.ID, "hello")
	require.NoError(t, err)

	sink := NewChannelSink(16)
	require.NoError(t, f.svc.OpenStream(ctx, f.user, f.session.ID, 0, sink))

	events := drain(t, sink)
	require.NotEmpty(t, events)
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	turns, err := f.conv.History(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "partial", turns[1].Content, "the reply accumulated before the deadline is persisted")
}

func TestStreamUpstreamErrorSignalsSinkWithoutTurnOrRefund(t *testing.T) {
	f := newRelayFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	ctx := context.Background()

	_, balanceAfterSend, err := f.svc.SendMessage(ctx, f.user, f.session.ID, "hello")
	require.NoError(t, err)

	sink := NewChannelSink(16)
	require.NoError(t, f.svc.OpenStream(ctx, f.user, f.session.ID, 0, sink))

	events := drain(t, sink)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)

	turns, err := f.conv.History(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, turns, 1, "no assistant turn on failure")

	balance, err := f.ledger.Balance(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(balanceAfterSend), "failed stream is not refunded")
}

func TestSendMessageDebitsBeforeAppend(t *testing.T) {
	f := newRelayFixture(t, sseHandler(`[DONE]`))
	ctx := context.Background()

	// Cost is ceil(10*512/100) = 52; drain the balance below it.
	require.NoError(t, f.db.Model(f.user).Update("credits", decimal.NewFromInt(3)).Error)

	_, _, err := f.svc.SendMessage(ctx, f.user, f.session.ID, "hello")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInsufficientFunds))

	turns, err := f.conv.History(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, turns, "rejected debit leaves the conversation untouched")
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	f := newRelayFixture(t, sseHandler(`[DONE]`))
	ctx := context.Background()

	before, err := f.ledger.Balance(ctx, f.user.ID)
	require.NoError(t, err)

	_, _, err = f.svc.SendMessage(ctx, f.user, f.session.ID, "   \n ")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeFailedPrecondition))

	after, err := f.ledger.Balance(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, after.Equal(before), "empty message is not charged")
}

func TestOpenStreamRequiresExistingTurn(t *testing.T) {
	f := newRelayFixture(t, sseHandler(`[DONE]`))

	sink := NewChannelSink(16)
	err := f.svc.OpenStream(context.Background(), f.user, f.session.ID, 0, sink)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeFailedPrecondition))
}

func TestOpenStreamSendsAuthAndWindowUpstream(t *testing.T) {
	captured := make(chan *http.Request, 1)
	bodyCh := make(chan []byte, 1)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured <- r
		bodyCh <- body
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	f := newRelayFixture(t, handler)
	ctx := context.Background()

	_, _, err := f.svc.SendMessage(ctx, f.user, f.session.ID, "what is up")
	require.NoError(t, err)

	sink := NewChannelSink(16)
	require.NoError(t, f.svc.OpenStream(ctx, f.user, f.session.ID, 0, sink))
	drain(t, sink)

	r := <-captured
	assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
	assert.Equal(t, http.MethodPost, r.Method)

	body := string(<-bodyCh)
	assert.Contains(t, body, `"stream":true`)
	assert.Contains(t, body, `"model":"gpt-test"`)
	assert.Contains(t, body, "You are helpful.")
	assert.Contains(t, body, "what is up")
}
