package sync

import (
	"context"
	"time"

	"github.com/nhle/procurement-inbox/internal/mailbox"
	"github.com/nhle/procurement-inbox/internal/reconcile"
)

// Mailbox opens sessions against the inbound mailbox.
type Mailbox interface {
	Configured() bool
	Open(ctx context.Context) (mailbox.Session, error)
	Probe(ctx context.Context) (*mailbox.Probe, error)
}

// Processor reconciles one message.
type Processor interface {
	Process(ctx context.Context, msg *mailbox.Message) (reconcile.Result, error)
}

// VendorLister provides the addresses of known vendors for classification.
type VendorLister interface {
	ListActiveVendorEmails(ctx context.Context) ([]string, error)
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Configured         bool       `json:"configured"`
	Running            bool       `json:"running"`
	CycleInProgress    bool       `json:"cycleInProgress"`
	IntervalMinutes    int        `json:"intervalMinutes,omitempty"`
	LastFetchTimestamp *time.Time `json:"lastFetchTimestamp"`
	LastError          string     `json:"lastError,omitempty"`
	LastSummary        *Summary   `json:"lastSummary,omitempty"`
}

// Summary reports the outcome of one fetch-and-process cycle.
type Summary struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// Fetched counts messages returned by the mailbox search; Ignored those
	// the classifier rejected and left unread.
	Fetched int `json:"fetched"`
	Ignored int `json:"ignored"`

	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	// Aborted is set when a database failure stopped the cycle early.
	Aborted bool   `json:"aborted"`
	Error   string `json:"error,omitempty"`

	Results []reconcile.Result `json:"results"`
}

func (s *Summary) add(res reconcile.Result) {
	s.Results = append(s.Results, res)
	switch res.Action {
	case reconcile.ActionCreated:
		s.Created++
	case reconcile.ActionUpdated:
		s.Updated++
	case reconcile.ActionSkipped:
		s.Skipped++
	case reconcile.ActionFailed:
		s.Failed++
	}
}

// ConnectionReport is the result of a mailbox connection test.
type ConnectionReport struct {
	OK        bool     `json:"ok"`
	Folder    string   `json:"folder,omitempty"`
	Mailboxes []string `json:"mailboxes,omitempty"`
	Messages  uint32   `json:"messages"`
	Error     string   `json:"error,omitempty"`
}
