package campaign

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mallsoft/peyk/internal/config"
	"github.com/mallsoft/peyk/internal/customer"
	"github.com/mallsoft/peyk/internal/gateway"
	"github.com/mallsoft/peyk/internal/recipient"
	"github.com/mallsoft/peyk/internal/segment"
	"github.com/mallsoft/peyk/internal/template"
)

// fakeGateway records sends and lets tests script rejections, systemic
// outages, and delivery confirmations. An optional gate channel blocks
// sends until the test releases them.
type fakeGateway struct {
	mu        sync.Mutex
	sends     map[string]int
	reject    map[string]bool
	delivered map[string]bool
	systemic  bool
	gate      chan struct{}
	waiting   int
	seq       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sends:     make(map[string]int),
		reject:    make(map[string]bool),
		delivered: make(map[string]bool),
	}
}

func (g *fakeGateway) Send(ctx context.Context, mobile, message, sender string) (*gateway.SendResult, error) {
	if g.gate != nil {
		g.mu.Lock()
		g.waiting++
		g.mu.Unlock()

		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.systemic {
		return nil, fmt.Errorf("%w: provider down", gateway.ErrUnavailable)
	}

	g.sends[mobile]++
	if g.reject[mobile] {
		return &gateway.SendResult{Accepted: false, Reason: "blocked number"}, nil
	}

	g.seq++
	id := fmt.Sprintf("msg-%d", g.seq)
	g.delivered[id] = true
	return &gateway.SendResult{Accepted: true, MessageID: id, Cost: 500}, nil
}

func (g *fakeGateway) CheckDelivery(ctx context.Context, messageID string) (*gateway.DeliveryStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &gateway.DeliveryStatus{Delivered: g.delivered[messageID]}, nil
}

func (g *fakeGateway) sendCount(mobile string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sends[mobile]
}

func (g *fakeGateway) waitingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}

type testEnv struct {
	storage    *BoltStorage
	templates  *template.Storage
	segments   *segment.Storage
	directory  *customer.MemoryDirectory
	gateway    *fakeGateway
	dispatcher *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	storage, err := NewBoltStorage(filepath.Join(t.TempDir(), "peyk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	templates, err := template.NewStorage(storage.DB())
	require.NoError(t, err)
	segments, err := segment.NewStorage(storage.DB())
	require.NoError(t, err)

	directory := customer.NewMemoryDirectory()
	resolver := recipient.NewResolver(segment.NewEvaluator(directory))
	gw := newFakeGateway()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := NewDispatcher(storage, templates, segments, directory, resolver, gw, config.DispatchConfig{
		Workers:     2,
		SendTimeout: 5 * time.Second,
		CostPerSMS:  500,
	}, logger)

	return &testEnv{
		storage:    storage,
		templates:  templates,
		segments:   segments,
		directory:  directory,
		gateway:    gw,
		dispatcher: dispatcher,
	}
}

func (e *testEnv) createCampaign(t *testing.T, c *Campaign) *Campaign {
	t.Helper()
	require.NoError(t, e.storage.Create(context.Background(), c))
	return c
}

func (e *testEnv) waitStatus(t *testing.T, storeID, id string, want Status) *Campaign {
	t.Helper()

	var c *Campaign
	require.Eventually(t, func() bool {
		var err error
		c, err = e.storage.Get(context.Background(), storeID, id)
		return err == nil && c.Status == want
	}, 3*time.Second, 10*time.Millisecond, "campaign never reached %s", want)
	return c
}

func customRecipients(mobiles ...string) []recipient.Custom {
	out := make([]recipient.Custom, 0, len(mobiles))
	for _, m := range mobiles {
		out = append(out, recipient.Custom{Mobile: m})
	}
	return out
}

func TestDispatcherCompletesCampaign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.createCampaign(t, &Campaign{
		StoreID:          "store-1",
		Name:             "Launch",
		Message:          "we are live",
		CustomRecipients: customRecipients("09121111111", "09122222222", "09123333333"),
		SendType:         SendImmediate,
	})

	started, err := env.dispatcher.Start(ctx, "store-1", c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSending, started.Status)
	require.Equal(t, 3, started.TotalRecipients)
	require.Equal(t, int64(1500), started.EstimatedCost)
	require.NotNil(t, started.StartedAt)

	done := env.waitStatus(t, "store-1", c.ID, StatusCompleted)
	require.Equal(t, 3, done.SentCount)
	require.Equal(t, 0, done.FailedCount)
	require.Equal(t, int64(1500), done.ActualCost)
	require.NotNil(t, done.CompletedAt)

	reports, err := env.storage.Reports(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for _, r := range reports {
		require.Equal(t, ReportSent, r.Status)
		require.NotEmpty(t, r.GatewayMessageID)
		require.NotNil(t, r.SentAt)
	}
}

func TestDispatcherPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.reject["+989122222222"] = true

	c := env.createCampaign(t, &Campaign{
		StoreID:          "store-1",
		Name:             "Launch",
		Message:          "we are live",
		CustomRecipients: customRecipients("09121111111", "09122222222", "09123333333"),
		SendType:         SendImmediate,
	})

	_, err := env.dispatcher.Start(ctx, "store-1", c.ID)
	require.NoError(t, err)

	done := env.waitStatus(t, "store-1", c.ID, StatusCompleted)
	require.Equal(t, 2, done.SentCount)
	require.Equal(t, 1, done.FailedCount)
	require.Equal(t, done.TotalRecipients, done.SentCount+done.FailedCount)

	reports, err := env.storage.Reports(ctx, c.ID)
	require.NoError(t, err)

	var failed *DeliveryReport
	for _, r := range reports {
		if r.Status == ReportFailed {
			failed = r
		}
	}
	require.NotNil(t, failed)
	require.Equal(t, "+989122222222", failed.Mobile)
	require.Equal(t, "blocked number", failed.FailureReason)
}

func TestDispatcherRejectsInvalidMobile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.createCampaign(t, &Campaign{
		StoreID:          "store-1",
		Name:             "Launch",
		Message:          "we are live",
		CustomRecipients: customRecipients("09121111111", "not-a-number"),
		SendType:         SendImmediate,
	})

	_, err := env.dispatcher.Start(ctx, "store-1", c.ID)
	require.NoError(t, err)

	done := env.waitStatus(t, "store-1", c.ID, StatusCompleted)
	require.Equal(t, 1, done.SentCount)
	require.Equal(t, 1, done.FailedCount)

	reports, err := env.storage.Reports(ctx, c.ID)
	require.NoError(t, err)

	var rejected *DeliveryReport
	for _, r := range reports {
		if r.Status == ReportRejected {
			rejected = r
		}
	}
	require.NotNil(t, rejected)
	require.Equal(t, "not-a-number", rejected.Mobile)
	require.Equal(t, 0, env.gateway.sendCount("not-a-number"))
}

func TestDispatcherSystemicFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.systemic = true

	c := env.createCampaign(t, &Campaign{
		StoreID:          "store-1",
		Name:             "Launch",
		Message:          "we are live",
		CustomRecipients: customRecipients("09121111111", "09122222222"),
		SendType:         SendImmediate,
	})

	_, err := env.dispatcher.Start(ctx, "store-1", c.ID)
	require.NoError(t, err)

	done := env.waitStatus(t, "store-1", c.ID, StatusFailed)
	require.Contains(t, done.FailureReason, "provider down")
	require.Equal(t, 0, done.SentCount)
}

func TestDispatcherPauseAndResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	gate := make(chan struct{})
	env.gateway.gate = gate

	c := env.createCampaign(t, &Campaign{
		StoreID:          "store-1",
		Name:             "Launch",
		Message:          "we are live",
		CustomRecipients: customRecipients("09121111111", "09122222222", "09123333333"),
		SendType:         SendImmediate,
	})

	_, err := env.dispatcher.Start(ctx, "store-1", c.ID)
	require.NoError(t, err)

	// Pause while the first send is blocked on the gate, then release it.
	// The loop sees the paused status before the second recipient.
	require.Eventually(t, func() bool { return env.gateway.waitingCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	_, err = env.dispatcher.Pause(ctx, "store-1", c.ID)
	require.NoError(t, err)
	gate <- struct{}{}

	env.dispatcher.Wait()
	paused, err := env.storage.Get(ctx, "store-1", c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, paused.Status)
	require.Equal(t, 1, paused.SentCount)

	close(gate)

	_, err = env.dispatcher.Resume(ctx, "store-1", c.ID)
	require.NoError(t, err)

	done := env.waitStatus(t, "store-1", c.ID, StatusCompleted)
	require.Equal(t, 3, done.SentCount)

	// The recipient handled before the pause is not messaged twice.
	require.Equal(t, 1, env.gateway.sendCount("+989121111111"))
	require.Equal(t, 1, env.gateway.sendCount("+989122222222"))
	require.Equal(t, 1, env.gateway.sendCount("+989123333333"))
}

func TestDispatcherResumeWhileSendInFlight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	gate := make(chan struct{})
	env.gateway.gate = gate

	c := env.createCampaign(t, &Campaign{
		StoreID:          "store-1",
		Name:             "Launch",
		Message:          "we are live",
		CustomRecipients: customRecipients("09121111111", "09122222222", "09123333333"),
		SendType:         SendImmediate,
	})

	_, err := env.dispatcher.Start(ctx, "store-1", c.ID)
	require.NoError(t, err)

	// Pause and resume again while the first send is still blocked on the
	// gate. The original loop carries the resume; a second loop would
	// message the remaining recipients twice.
	require.Eventually(t, func() bool { return env.gateway.waitingCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	_, err = env.dispatcher.Pause(ctx, "store-1", c.ID)
	require.NoError(t, err)

	resumed, err := env.dispatcher.Resume(ctx, "store-1", c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSending, resumed.Status)

	close(gate)

	done := env.waitStatus(t, "store-1", c.ID, StatusCompleted)
	require.Equal(t, 3, done.SentCount)
	require.Equal(t, 0, done.FailedCount)
	require.Equal(t, done.TotalRecipients, done.SentCount+done.FailedCount)

	for _, mobile := range []string{"+989121111111", "+989122222222", "+989123333333"} {
		require.Equal(t, 1, env.gateway.sendCount(mobile), "%s messaged more than once", mobile)
	}

	reports, err := env.storage.Reports(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, reports, 3)
}

func TestDispatcherCancelMidSend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	gate := make(chan struct{})
	env.gateway.gate = gate

	c := env.createCampaign(t, &Campaign{
		StoreID:          "store-1",
		Name:             "Launch",
		Message:          "we are live",
		CustomRecipients: customRecipients("09121111111", "09122222222"),
		SendType:         SendImmediate,
	})

	_, err := env.dispatcher.Start(ctx, "store-1", c.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return env.gateway.waitingCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	_, err = env.dispatcher.Cancel(ctx, "store-1", c.ID)
	require.NoError(t, err)
	gate <- struct{}{}

	env.dispatcher.Wait()
	cancelled, err := env.storage.Get(ctx, "store-1", c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, 0, env.gateway.sendCount("+989122222222"))

	// Terminal: no way back.
	_, err = env.dispatcher.Resume(ctx, "store-1", c.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDispatcherStartRequiresRecipients(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seg := &segment.Segment{StoreID: "store-1", Name: "Everyone", Type: segment.TypeAll, Active: true}
	require.NoError(t, env.segments.Create(ctx, seg))

	c := env.createCampaign(t, &Campaign{
		StoreID:    "store-1",
		Name:       "Launch",
		Message:    "we are live",
		SegmentIDs: []string{seg.ID},
		SendType:   SendImmediate,
	})

	// Empty store: the segment resolves to nobody.
	_, err := env.dispatcher.Start(ctx, "store-1", c.ID)
	require.ErrorIs(t, err, ErrNoRecipients)

	// The failed start leaves the campaign untouched.
	fresh, err := env.storage.Get(ctx, "store-1", c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, fresh.Status)
}

func TestDispatcherSegmentRecipients(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.directory.AddStore(&customer.Store{ID: "store-1", Name: "کافه گل"})
	env.directory.AddCustomer(&customer.Customer{
		ID: "c1", StoreID: "store-1", FirstName: "سارا", LastName: "محمدی",
		Mobile: "09121111111", RegisteredAt: time.Now(),
	})

	seg := &segment.Segment{StoreID: "store-1", Name: "Everyone", Type: segment.TypeAll, Active: true}
	require.NoError(t, env.segments.Create(ctx, seg))

	tmpl := &template.Template{
		StoreID:  "store-1",
		Name:     "welcome",
		Category: template.CategoryWelcome,
		Body:      "{{customer_name}} عزیز، به {{store_name}} خوش آمدید",
		Variables: []string{"customer_name", "store_name"},
		Active:    true,
	}
	require.NoError(t, env.templates.Create(ctx, tmpl))

	c := env.createCampaign(t, &Campaign{
		StoreID:    "store-1",
		Name:       "Welcome",
		TemplateID: tmpl.ID,
		SegmentIDs: []string{seg.ID},
		SendType:   SendImmediate,
	})

	_, err := env.dispatcher.Start(ctx, "store-1", c.ID)
	require.NoError(t, err)

	env.waitStatus(t, "store-1", c.ID, StatusCompleted)

	reports, err := env.storage.Reports(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "سارا محمدی عزیز، به کافه گل خوش آمدید", reports[0].Message)

	// Starting bumps the template usage counter.
	fresh, err := env.templates.Get(ctx, "store-1", tmpl.ID)
	require.NoError(t, err)
	require.Equal(t, 1, fresh.UsageCount)
}
