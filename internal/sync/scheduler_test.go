package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/procurement-inbox/internal/ai"
	"github.com/nhle/procurement-inbox/internal/mailbox"
	"github.com/nhle/procurement-inbox/internal/metrics"
	"github.com/nhle/procurement-inbox/internal/model"
	"github.com/nhle/procurement-inbox/internal/reconcile"
	"github.com/nhle/procurement-inbox/internal/resolve"
	"github.com/nhle/procurement-inbox/internal/store"
	storetest "github.com/nhle/procurement-inbox/tests/testutil"
)

// fakeMailbox hands out fakeSessions over a fixed message list.
type fakeMailbox struct {
	mu         gosync.Mutex
	configured bool
	messages   []mailbox.Message
	openErr    error
	probeErr   error
	block      chan struct{}
	opens      int
	seen       map[uint32]bool
	unseen     []uint32
	closed     int
}

func newFakeMailbox(msgs ...mailbox.Message) *fakeMailbox {
	return &fakeMailbox{configured: true, messages: msgs, seen: map[uint32]bool{}}
}

func (f *fakeMailbox) Configured() bool { return f.configured }

func (f *fakeMailbox) Open(context.Context) (mailbox.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeSession{mb: f}, nil
}

func (f *fakeMailbox) Probe(context.Context) (*mailbox.Probe, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &mailbox.Probe{Folder: "INBOX", Mailboxes: []string{"INBOX", "Sent"}, Messages: 12}, nil
}

func (f *fakeMailbox) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type fakeSession struct {
	mb *fakeMailbox
}

func (s *fakeSession) Search(ctx context.Context, c mailbox.Criteria) ([]mailbox.Message, error) {
	if s.mb.block != nil {
		select {
		case <-s.mb.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()

	var out []mailbox.Message
	for _, m := range s.mb.messages {
		if c.Unseen && s.mb.seen[m.UID] {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *fakeSession) MarkSeen(_ context.Context, uid uint32) error {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	s.mb.seen[uid] = true
	return nil
}

func (s *fakeSession) MarkUnseen(_ context.Context, uid uint32) error {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	delete(s.mb.seen, uid)
	s.mb.unseen = append(s.mb.unseen, uid)
	return nil
}

func (s *fakeSession) Close() error {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	s.mb.closed++
	return nil
}

// fakeProcessor returns scripted results by UID.
type fakeProcessor struct {
	mu        gosync.Mutex
	processed []uint32
	errs      map[uint32]error
}

func (p *fakeProcessor) Process(_ context.Context, msg *mailbox.Message) (reconcile.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, msg.UID)
	if err := p.errs[msg.UID]; err != nil {
		return reconcile.Result{Action: reconcile.ActionFailed, UID: msg.UID, Reason: err.Error()}, err
	}
	return reconcile.Result{Action: reconcile.ActionCreated, UID: msg.UID}, nil
}

type staticVendors []string

func (v staticVendors) ListActiveVendorEmails(context.Context) ([]string, error) {
	return v, nil
}

func newTestScheduler(mb Mailbox, p Processor) *Scheduler {
	s := New(mb, p, staticVendors{"v1@x.com"}, Config{}, metrics.New(nil), nil)
	s.unit = time.Hour
	return s
}

func relevant(uid uint32) mailbox.Message {
	return mailbox.Message{UID: uid, From: "v1@x.com", Subject: fmt.Sprintf("Re: RFP-0000000%d", uid)}
}

func TestStart_NotConfiguredRefuses(t *testing.T) {
	mb := newFakeMailbox()
	mb.configured = false
	s := newTestScheduler(mb, &fakeProcessor{})

	err := s.Start(2)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.False(t, s.Status().Running)
	assert.False(t, s.Status().Configured)

	_, err = s.FetchAndProcessEmails(context.Background())
	assert.True(t, IsConfigurationError(err))

	_, err = s.TestConnection(context.Background())
	assert.True(t, IsConfigurationError(err))
}

func TestStart_TwiceArmsOneTimer(t *testing.T) {
	mb := newFakeMailbox(relevant(1))
	s := newTestScheduler(mb, &fakeProcessor{})
	t.Cleanup(s.Stop)

	require.NoError(t, s.Start(2))
	require.NoError(t, s.Start(2))

	require.Eventually(t, func() bool { return s.Status().LastFetchTimestamp != nil },
		time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, mb.openCount())
	st := s.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.IntervalMinutes)
	assert.True(t, st.Configured)
}

func TestStart_TicksUntilStopped(t *testing.T) {
	mb := newFakeMailbox()
	s := newTestScheduler(mb, &fakeProcessor{})
	s.unit = 5 * time.Millisecond

	require.NoError(t, s.Start(1))
	require.Eventually(t, func() bool { return mb.openCount() >= 3 }, time.Second, time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.Status().Running)

	time.Sleep(20 * time.Millisecond)
	settled := mb.openCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, mb.openCount())
}

func TestStart_DefaultInterval(t *testing.T) {
	s := newTestScheduler(newFakeMailbox(), &fakeProcessor{})
	t.Cleanup(s.Stop)

	require.NoError(t, s.Start(0))
	assert.Equal(t, defaultIntervalMinutes, s.Status().IntervalMinutes)
}

func TestFetch_MarksOnlyRelevantMessagesSeen(t *testing.T) {
	mb := newFakeMailbox(
		relevant(1),
		mailbox.Message{UID: 2, From: "news@letter.com", Subject: "Re: weekly digest"},
		mailbox.Message{UID: 3, From: "new@vendor.io", Subject: "Our proposal"},
	)
	p := &fakeProcessor{}
	s := newTestScheduler(mb, p)

	summary, err := s.FetchAndProcessEmails(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 1, summary.Ignored)
	assert.Equal(t, 2, summary.Created)
	assert.Len(t, summary.Results, 2)
	assert.Equal(t, []uint32{1, 3}, p.processed)
	assert.True(t, mb.seen[1])
	assert.False(t, mb.seen[2])
	assert.True(t, mb.seen[3])
	assert.Equal(t, 1, mb.closed)

	st := s.Status()
	require.NotNil(t, st.LastFetchTimestamp)
	assert.Empty(t, st.LastError)
	assert.Equal(t, summary, st.LastSummary)

	// Seen messages are not fetched again.
	summary, err = s.FetchAndProcessEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 1, summary.Ignored)
}

type scriptedParser struct{}

func (scriptedParser) ParseVendorResponse(_ context.Context, body string, _ *model.Rfp) (*model.ParsedProposal, error) {
	if body == "garbage" {
		return nil, &ai.ParseError{Reason: "model returned invalid JSON"}
	}
	total := 100.0
	return &model.ParsedProposal{TotalPrice: &total, Currency: "USD"}, nil
}

func TestFetch_MalformedMessageDoesNotBlockBatch(t *testing.T) {
	db := storetest.NewTestStore(t)
	rfp := storetest.SeedRfp(t, db, "rfp-0000-a1b2c3d4", model.RfpStatusSent)

	var msgs []mailbox.Message
	for i := 1; i <= 5; i++ {
		email := fmt.Sprintf("v%d@x.com", i)
		v := storetest.SeedVendor(t, db, email)
		storetest.SeedSent(t, db, rfp.ID, v.ID, time.Now(), "")

		body := fmt.Sprintf("Offer from vendor %d", i)
		if i == 3 {
			body = "garbage"
		}
		msgs = append(msgs, mailbox.Message{
			UID: uint32(i), From: email, Subject: "Re: RFP-A1B2C3D4", TextBody: body,
		})
	}

	engine := reconcile.NewEngine(resolve.New(db, nil), scriptedParser{}, db, nil)
	mb := newFakeMailbox(msgs...)
	reg := prometheus.NewRegistry()
	s := New(mb, engine, db, Config{}, metrics.New(reg), nil)

	summary, err := s.FetchAndProcessEmails(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Fetched)
	assert.Equal(t, 4, summary.Created)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Aborted)
	require.Len(t, summary.Results, 5)
	assert.Equal(t, reconcile.ActionFailed, summary.Results[2].Action)

	for i := uint32(1); i <= 5; i++ {
		assert.True(t, mb.seen[i], "uid %d", i)
	}

	proposals, err := db.ListProposalsForRfp(context.Background(), rfp.ID)
	require.NoError(t, err)
	assert.Len(t, proposals, 4)

	logs, err := db.CountEmailLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, logs)

	assert.Equal(t, 4.0, testutil.ToFloat64(s.metrics.MessagesTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.MessagesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.CyclesTotal.WithLabelValues(metrics.CycleOK)))
}

func TestFetch_PersistenceErrorAbortsAndRestoresUnseen(t *testing.T) {
	mb := newFakeMailbox(relevant(1), relevant(2), relevant(3))
	p := &fakeProcessor{errs: map[uint32]error{
		2: &store.PersistenceError{Op: "inserting proposal", Err: errors.New("disk I/O error")},
	}}
	s := newTestScheduler(mb, p)

	summary, err := s.FetchAndProcessEmails(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsPersistenceError(err))

	require.NotNil(t, summary)
	assert.True(t, summary.Aborted)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []uint32{1, 2}, p.processed)
	assert.Equal(t, []uint32{2}, mb.unseen)
	assert.True(t, mb.seen[1])
	assert.False(t, mb.seen[2])
	assert.False(t, mb.seen[3])

	st := s.Status()
	assert.Nil(t, st.LastFetchTimestamp)
	assert.Contains(t, st.LastError, "disk I/O error")
	assert.Equal(t, 1, mb.closed)
}

func TestFetch_OverlappingTriggerIsRejected(t *testing.T) {
	mb := newFakeMailbox(relevant(1))
	mb.block = make(chan struct{})
	s := newTestScheduler(mb, &fakeProcessor{})

	done := make(chan error, 1)
	go func() {
		_, err := s.FetchAndProcessEmails(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return s.Status().CycleInProgress },
		time.Second, time.Millisecond)

	_, err := s.FetchAndProcessEmails(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(mb.block)
	require.NoError(t, <-done)
	assert.False(t, s.Status().CycleInProgress)
	assert.Equal(t, 1, mb.openCount())
}

func TestFetch_ConnectionErrorIsReported(t *testing.T) {
	mb := newFakeMailbox(relevant(1))
	mb.openErr = &mailbox.ConnectionError{Op: "login", Addr: "imap.example.com:993", Err: errors.New("bad credentials")}
	s := newTestScheduler(mb, &fakeProcessor{})

	summary, err := s.FetchAndProcessEmails(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, mailbox.IsConnectionError(err))

	st := s.Status()
	assert.Nil(t, st.LastFetchTimestamp)
	assert.Contains(t, st.LastError, "bad credentials")

	mb.openErr = nil
	_, err = s.FetchAndProcessEmails(context.Background())
	require.NoError(t, err)
	st = s.Status()
	assert.NotNil(t, st.LastFetchTimestamp)
	assert.Empty(t, st.LastError)
}

func TestFetch_CallerCancellationDoesNotAbortCycle(t *testing.T) {
	mb := newFakeMailbox(relevant(1))
	s := newTestScheduler(mb, &fakeProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := s.FetchAndProcessEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
}

func TestTestConnection(t *testing.T) {
	mb := newFakeMailbox()
	s := newTestScheduler(mb, &fakeProcessor{})

	report, err := s.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, "INBOX", report.Folder)
	assert.Equal(t, uint32(12), report.Messages)

	mb.probeErr = &mailbox.ConnectionError{Op: "dial", Addr: "x:993", Err: errors.New("refused")}
	report, err = s.TestConnection(context.Background())
	require.Error(t, err)
	assert.False(t, report.OK)
	assert.Contains(t, report.Error, "refused")
}

func TestShutdown_WaitsForInFlightCycle(t *testing.T) {
	mb := newFakeMailbox(relevant(1))
	mb.block = make(chan struct{})
	s := newTestScheduler(mb, &fakeProcessor{})

	require.NoError(t, s.Start(1))
	require.Eventually(t, func() bool { return s.Status().CycleInProgress },
		time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Shutdown(ctx))
	assert.False(t, s.Status().Running)

	close(mb.block)
	require.NoError(t, s.Shutdown(context.Background()))
	assert.False(t, s.Status().CycleInProgress)
}

func TestStart_RestartDuringCycleRunsImmediateCycle(t *testing.T) {
	mb := newFakeMailbox(relevant(1))
	mb.block = make(chan struct{})
	s := newTestScheduler(mb, &fakeProcessor{})
	t.Cleanup(s.Stop)

	require.NoError(t, s.Start(1))
	require.Eventually(t, func() bool { return s.Status().CycleInProgress },
		time.Second, time.Millisecond)

	s.Stop()
	require.NoError(t, s.Start(1))
	close(mb.block)

	require.Eventually(t, func() bool { return mb.openCount() == 2 },
		time.Second, time.Millisecond)
	assert.True(t, s.Status().Running)
}

func TestStop_AbandonsWaitForInFlightCycle(t *testing.T) {
	mb := newFakeMailbox(relevant(1))
	mb.block = make(chan struct{})
	s := newTestScheduler(mb, &fakeProcessor{})

	require.NoError(t, s.Start(1))
	require.Eventually(t, func() bool { return s.Status().CycleInProgress },
		time.Second, time.Millisecond)

	s.Stop()
	require.NoError(t, s.Start(1))
	s.Stop()
	close(mb.block)

	require.NoError(t, s.Shutdown(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, mb.openCount())
}

func TestFetch_UndecodableMessageIsReportedAndMarkedSeen(t *testing.T) {
	db := storetest.NewTestStore(t)
	rfp := storetest.SeedRfp(t, db, "rfp-0000-a1b2c3d4", model.RfpStatusSent)
	v := storetest.SeedVendor(t, db, "v1@x.com")
	storetest.SeedSent(t, db, rfp.ID, v.ID, time.Now(), "")

	raw := []byte("From: v1@x.com\r\nSubject: Re: RFP-A1B2C3D4 quote\r\n" +
		"this line has no colon\r\n\r\nbody")
	_, parseErr := mailbox.ParseMessage(7, raw)
	require.Error(t, parseErr)

	mb := newFakeMailbox(
		mailbox.Message{UID: 6, From: "v1@x.com", Subject: "Re: RFP-A1B2C3D4", TextBody: "Offer 100 USD"},
		mailbox.UndecodableMessage(7, raw, parseErr),
		mailbox.Message{UID: 8, From: "news@letter.com", Subject: "Re: digest"},
	)
	engine := reconcile.NewEngine(resolve.New(db, nil), scriptedParser{}, db, nil)
	s := New(mb, engine, db, Config{}, metrics.New(nil), nil)

	summary, err := s.FetchAndProcessEmails(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Ignored)
	require.Len(t, summary.Results, 2)

	res := summary.Results[1]
	assert.Equal(t, reconcile.ActionFailed, res.Action)
	assert.Equal(t, reconcile.ReasonUndecodable, res.Reason)
	assert.Equal(t, uint32(7), res.UID)
	assert.NotEmpty(t, res.EmailLogID)

	assert.True(t, mb.seen[7])
	assert.False(t, mb.seen[8])

	logs, err := db.ListEmailLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	var found bool
	for _, l := range logs {
		if l.ID == res.EmailLogID {
			found = true
			assert.Equal(t, "v1@x.com", l.FromAddress)
			assert.Contains(t, l.RawPayload, "malformed MIME header line")
			assert.Nil(t, l.VendorID)
		}
	}
	assert.True(t, found)

	// Marked seen, so the next cycle does not refetch it.
	summary, err = s.FetchAndProcessEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 0, summary.Failed)
}
