// Package resolve maps an inbound message to the vendor that sent it and the
// RFP it answers.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/procurement-inbox/internal/mailbox"
	"github.com/nhle/procurement-inbox/internal/model"
	"github.com/nhle/procurement-inbox/internal/store"
)

// Store is the subset of the persistence layer the resolver reads.
type Store interface {
	GetVendorByEmail(ctx context.Context, email string) (*model.Vendor, error)
	ListRfpsByStatus(ctx context.Context, statuses ...model.RfpStatus) ([]model.Rfp, error)
	ListSentRfpIDs(ctx context.Context, vendorID string) ([]string, error)
	LatestSentRfp(ctx context.Context, vendorID string) (*model.Rfp, error)
	FindRfpByOutboundMessageIDs(ctx context.Context, vendorID string, messageIDs []string) (*model.Rfp, error)
}

// Strategy is one way of finding the RFP a message answers. Match returns
// nil without error when the strategy does not apply.
type Strategy interface {
	Name() string
	Match(ctx context.Context, msg *mailbox.Message, vendor *model.Vendor) (*model.Rfp, error)
}

// Match is a resolved RFP and the strategy that found it.
type Match struct {
	Rfp      *model.Rfp
	Strategy string
}

// Resolver evaluates its strategies in order; the first match wins.
type Resolver struct {
	store      Store
	strategies []Strategy
	logger     *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreadMatching inserts the message-id threading strategy between the
// subject code and recency strategies.
func WithThreadMatching() Option {
	return func(r *Resolver) {
		r.strategies = []Strategy{
			&SubjectCode{store: r.store, logger: r.logger},
			&Thread{store: r.store},
			&RecentlySent{store: r.store},
		}
	}
}

// WithStrategies replaces the strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Resolver) {
		r.strategies = strategies
	}
}

// New creates a Resolver with the default order: SubjectCode then
// RecentlySent.
func New(s Store, logger *zap.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{store: s, logger: logger.Named("resolve")}
	r.strategies = []Strategy{
		&SubjectCode{store: s, logger: r.logger},
		&RecentlySent{store: s},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strategies returns the names of the configured strategies in order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// ResolveVendor finds the vendor whose email equals the sender address,
// ignoring case. It returns nil, nil for unknown senders.
func (r *Resolver) ResolveVendor(ctx context.Context, from string) (*model.Vendor, error) {
	if from == "" {
		return nil, nil
	}
	v, err := r.store.GetVendorByEmail(ctx, from)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving vendor %s: %w", from, err)
	}
	return v, nil
}

// ResolveRfp runs the strategies in order and returns the first match, or
// nil, nil when none matches. Store failures are returned as errors.
func (r *Resolver) ResolveRfp(ctx context.Context, msg *mailbox.Message, vendor *model.Vendor) (*Match, error) {
	for _, s := range r.strategies {
		rfp, err := s.Match(ctx, msg, vendor)
		if err != nil {
			return nil, fmt.Errorf("resolving rfp (%s): %w", s.Name(), err)
		}
		if rfp != nil {
			return &Match{Rfp: rfp, Strategy: s.Name()}, nil
		}
	}
	return nil, nil
}
