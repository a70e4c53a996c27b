// ABOUTME: Tests for the conversation service driving the real runtime
// ABOUTME: Covers approve and deny flows, history, turn locking and broadcasting

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimyungju/pricewise/internal/agent"
	"github.com/kimyungju/pricewise/internal/approval"
	"github.com/kimyungju/pricewise/internal/interrupt"
	"github.com/kimyungju/pricewise/internal/llm/llmtest"
	"github.com/kimyungju/pricewise/internal/observability"
	"github.com/kimyungju/pricewise/internal/protocol"
	"github.com/kimyungju/pricewise/internal/session"
	"github.com/kimyungju/pricewise/internal/store"
	"github.com/kimyungju/pricewise/internal/tools"
)

type staticSearcher struct{}

func (staticSearcher) Search(ctx context.Context, query string) (*tools.SearchResponse, error) {
	return &tools.SearchResponse{Results: []tools.SearchResult{{URL: "https://example.com/h", Content: "Anker Soundcore Q30 $79"}}}, nil
}

type serviceFixture struct {
	svc      *Service
	provider *llmtest.Provider
	metrics  *observability.Metrics
	bcast    *EventBroadcaster
}

func newService(t *testing.T, replies ...llmtest.Reply) *serviceFixture {
	t.Helper()
	s := store.NewMemoryStore()
	reg := tools.NewRegistry(nil, nil)
	require.NoError(t, reg.Register(tools.NewSearchProductTool(staticSearcher{}, 0)))
	require.NoError(t, reg.Register(tools.NewAddToWishlistTool(s)))
	require.NoError(t, approval.Gate(reg, approval.DefaultGated...))

	p := llmtest.New(replies...)
	rt := agent.NewRuntime(p, reg, s, agent.Config{})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	bcast := NewEventBroadcaster(nil)
	t.Cleanup(bcast.Close)

	return &serviceFixture{
		svc:      New(rt, session.NewRegistry(s, nil), bcast, metrics, nil),
		provider: p,
		metrics:  metrics,
		bcast:    bcast,
	}
}

func collect(t *testing.T, ch <-chan protocol.Event) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func headphoneSearch() llmtest.Reply {
	return llmtest.Call(store.ToolCall{ID: "call_1", Name: "search_product", Args: map[string]any{"query": "wireless headphones under $100"}})
}

func TestService_ApproveFlow(t *testing.T) {
	f := newService(t, headphoneSearch(), llmtest.Say("The Anker Q30 is $79."))
	f.provider.Structured = `{"product_name":"Anker Soundcore Q30","price":79,"currency":"USD"}`
	ctx := context.Background()
	sess := f.svc.CreateSession()

	ch, err := f.svc.Send(ctx, sess.ID, "Find me wireless headphones under $100")
	require.NoError(t, err)
	first := collect(t, ch)
	require.Equal(t, []protocol.Kind{protocol.KindToolCall, protocol.KindApprovalRequired, protocol.KindDone}, kinds(first))
	pending := first[1].Data.(protocol.ApprovalRequiredData)
	assert.Len(t, pending.InterruptIDs, 1)
	assert.Equal(t, "search_product", pending.ToolCalls[0].Name)

	ch, err = f.svc.Approve(ctx, sess.ID, true)
	require.NoError(t, err)
	second := collect(t, ch)
	assert.Equal(t, []protocol.Kind{protocol.KindToolResult, protocol.KindToken, protocol.KindReceipt, protocol.KindDone}, kinds(second))
	assert.Contains(t, second[0].Data.(protocol.ToolResultData).Result, "Anker Soundcore Q30")
	assert.Equal(t, "Anker Soundcore Q30", second[2].Data.(protocol.ReceiptData).ProductName)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Approvals.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Turns.WithLabelValues(TurnMessage, OutcomePaused)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Turns.WithLabelValues(TurnApprove, OutcomeCompleted)))
}

func TestService_DenyFlow(t *testing.T) {
	f := newService(t, headphoneSearch(), llmtest.Say("Understood, I won't search."))
	ctx := context.Background()
	sess := f.svc.CreateSession()

	ch, err := f.svc.Send(ctx, sess.ID, "Find me wireless headphones under $100")
	require.NoError(t, err)
	collect(t, ch)

	ch, err = f.svc.Approve(ctx, sess.ID, false)
	require.NoError(t, err)
	events := collect(t, ch)
	require.Equal(t, []protocol.Kind{protocol.KindToolResult, protocol.KindToken, protocol.KindDone}, kinds(events))
	assert.Equal(t, approval.Denial("search_product"), events[0].Data.(protocol.ToolResultData).Result)

	h, err := f.svc.History(ctx, sess.ID)
	require.NoError(t, err)
	roles := make([]string, 0, len(h.Messages))
	for _, m := range h.Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"user", "assistant", "tool", "assistant"}, roles)
	assert.Equal(t, "search_product", h.Messages[2].Name)
	assert.Equal(t, approval.Denial("search_product"), h.Messages[2].Content)
	require.Len(t, h.Messages[1].ToolCalls, 1)
	assert.Nil(t, h.Receipt)
}

func TestService_ApproveWithoutPendingInterrupt(t *testing.T) {
	f := newService(t)
	sess := f.svc.CreateSession()

	ch, err := f.svc.Approve(context.Background(), sess.ID, true)
	require.NoError(t, err)
	events := collect(t, ch)
	require.Equal(t, []protocol.Kind{protocol.KindError, protocol.KindDone}, kinds(events))
	assert.Equal(t, interrupt.ErrNoPendingInterrupt.Error(), events[0].Data.(protocol.ErrorData).Message)
}

func TestService_MessageWhilePaused(t *testing.T) {
	f := newService(t, headphoneSearch())
	ctx := context.Background()
	sess := f.svc.CreateSession()

	ch, err := f.svc.Send(ctx, sess.ID, "find headphones")
	require.NoError(t, err)
	collect(t, ch)

	ch, err = f.svc.Send(ctx, sess.ID, "never mind")
	require.NoError(t, err)
	events := collect(t, ch)
	assert.Equal(t, []protocol.Kind{protocol.KindError, protocol.KindDone}, kinds(events))
}

func TestService_UnknownSession(t *testing.T) {
	f := newService(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "missing", "hi")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = f.svc.Approve(ctx, "missing", true)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = f.svc.History(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestService_EmptyMessage(t *testing.T) {
	f := newService(t)
	sess := f.svc.CreateSession()
	_, err := f.svc.Send(context.Background(), sess.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestService_HistoryOfNewSession(t *testing.T) {
	f := newService(t)
	sess := f.svc.CreateSession()
	h, err := f.svc.History(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, h.Messages)
	assert.NotNil(t, h.Messages)
	assert.Nil(t, h.Receipt)
}

type blockingRuntime struct {
	release chan struct{}
}

func (b *blockingRuntime) Stream(ctx context.Context, threadID string, in agent.Input) (<-chan agent.Event, error) {
	ch := make(chan agent.Event)
	go func() {
		defer close(ch)
		<-b.release
	}()
	return ch, nil
}

func (b *blockingRuntime) State(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	return nil, nil
}

func TestService_TurnInProgress(t *testing.T) {
	rt := &blockingRuntime{release: make(chan struct{})}
	svc := New(rt, session.NewRegistry(store.NewMemoryStore(), nil), nil, nil, nil)
	sess := svc.CreateSession()
	ctx := context.Background()

	first, err := svc.Send(ctx, sess.ID, "one")
	require.NoError(t, err)

	_, err = svc.Send(ctx, sess.ID, "two")
	assert.ErrorIs(t, err, session.ErrTurnInProgress)
	_, err = svc.Approve(ctx, sess.ID, true)
	assert.ErrorIs(t, err, session.ErrTurnInProgress)

	close(rt.release)
	collect(t, first)

	require.Eventually(t, func() bool { return !sess.Busy() }, time.Second, 5*time.Millisecond)
	second, err := svc.Send(ctx, sess.ID, "two")
	require.NoError(t, err)
	collect(t, second)
}

func TestService_BroadcastsToWatchers(t *testing.T) {
	f := newService(t, llmtest.Say("hello"))
	sess := f.svc.CreateSession()

	watchCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watch, err := f.svc.Subscribe(watchCtx, sess.ID)
	require.NoError(t, err)

	ch, err := f.svc.Send(context.Background(), sess.ID, "hi")
	require.NoError(t, err)
	direct := collect(t, ch)

	var watched []protocol.Event
	for len(watched) < len(direct) {
		select {
		case e := <-watch:
			watched = append(watched, e)
		case <-time.After(time.Second):
			t.Fatal("watcher missed events")
		}
	}
	assert.Equal(t, kinds(direct), kinds(watched))
}

func TestService_StreamEventMetrics(t *testing.T) {
	f := newService(t, llmtest.Say("a", "b"))
	sess := f.svc.CreateSession()
	ch, err := f.svc.Send(context.Background(), sess.ID, "hi")
	require.NoError(t, err)
	collect(t, ch)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.StreamEvents.WithLabelValues(string(protocol.KindToken))))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StreamEvents.WithLabelValues(string(protocol.KindDone))))
}
