package resolve

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/nhle/procurement-inbox/internal/classify"
	"github.com/nhle/procurement-inbox/internal/mailbox"
	"github.com/nhle/procurement-inbox/internal/model"
	"github.com/nhle/procurement-inbox/internal/store"
)

// Strategy names.
const (
	StrategySubjectCode  = "subject_code"
	StrategyThread       = "thread"
	StrategyRecentlySent = "recently_sent"
)

// SubjectCode matches an "RFP-XXXXXXXX" tag in the subject against the short
// codes of RFPs that still accept replies.
//
// When several active RFPs share the code, only those sent to the vendor
// are kept; exactly one must remain, otherwise the strategy does not match.
type SubjectCode struct {
	store  Store
	logger *zap.Logger
}

// NewSubjectCode creates the subject code strategy.
func NewSubjectCode(s Store, logger *zap.Logger) *SubjectCode {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectCode{store: s, logger: logger}
}

func (s *SubjectCode) Name() string { return StrategySubjectCode }

func (s *SubjectCode) Match(ctx context.Context, msg *mailbox.Message, vendor *model.Vendor) (*model.Rfp, error) {
	code, ok := classify.ExtractShortCode(msg.Subject)
	if !ok {
		return nil, nil
	}

	rfps, err := s.store.ListRfpsByStatus(ctx, model.ActiveRfpStatuses...)
	if err != nil {
		return nil, err
	}

	var candidates []model.Rfp
	for _, r := range rfps {
		if r.ShortCode() == code {
			candidates = append(candidates, r)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return &candidates[0], nil
	}

	sent, err := s.store.ListSentRfpIDs(ctx, vendor.ID)
	if err != nil {
		return nil, err
	}

	var narrowed []model.Rfp
	for _, r := range candidates {
		if slices.Contains(sent, r.ID) {
			narrowed = append(narrowed, r)
		}
	}

	if len(narrowed) != 1 {
		ids := make([]string, len(candidates))
		for i, r := range candidates {
			ids[i] = r.ID
		}
		s.logger.Warn("ambiguous rfp short code",
			zap.String("code", code),
			zap.Strings("rfp_ids", ids),
			zap.String("vendor_id", vendor.ID),
			zap.Int("sent_to_vendor", len(narrowed)),
		)
		return nil, nil
	}

	return &narrowed[0], nil
}

// Thread matches the message's In-Reply-To and References headers against
// the Message-IDs of RFP emails sent to the vendor.
type Thread struct {
	store Store
}

// NewThread creates the message-id threading strategy.
func NewThread(s Store) *Thread {
	return &Thread{store: s}
}

func (t *Thread) Name() string { return StrategyThread }

func (t *Thread) Match(ctx context.Context, msg *mailbox.Message, vendor *model.Vendor) (*model.Rfp, error) {
	ids := msg.ThreadIDs()
	if len(ids) == 0 {
		return nil, nil
	}

	rfp, err := t.store.FindRfpByOutboundMessageIDs(ctx, vendor.ID, ids)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rfp, nil
}

// RecentlySent picks the RFP most recently emailed to the vendor.
type RecentlySent struct {
	store Store
}

// NewRecentlySent creates the recency fallback strategy.
func NewRecentlySent(s Store) *RecentlySent {
	return &RecentlySent{store: s}
}

func (r *RecentlySent) Name() string { return StrategyRecentlySent }

func (r *RecentlySent) Match(ctx context.Context, _ *mailbox.Message, vendor *model.Vendor) (*model.Rfp, error) {
	rfp, err := r.store.LatestSentRfp(ctx, vendor.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rfp, nil
}
