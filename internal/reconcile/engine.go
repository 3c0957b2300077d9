// Package reconcile turns one inbound message into an audit record and, when
// the sender and RFP can be identified, a created or updated proposal.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/procurement-inbox/internal/mailbox"
	"github.com/nhle/procurement-inbox/internal/model"
	"github.com/nhle/procurement-inbox/internal/resolve"
)

// Action is the outcome of processing one message.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// Skip reasons.
const (
	ReasonUnknownVendor    = "unknown vendor"
	ReasonRfpNotIdentified = "RFP not identified"
	ReasonUndecodable      = "undecodable message"
)

// Result describes what happened to one message.
type Result struct {
	Action     Action `json:"action"`
	Reason     string `json:"reason,omitempty"`
	UID        uint32 `json:"uid"`
	MessageID  string `json:"message_id,omitempty"`
	Subject    string `json:"subject"`
	From       string `json:"from"`
	VendorID   string `json:"vendor_id,omitempty"`
	RfpID      string `json:"rfp_id,omitempty"`
	ProposalID string `json:"proposal_id,omitempty"`
	EmailLogID string `json:"email_log_id,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
}

// Resolver identifies the vendor and RFP of a message.
type Resolver interface {
	ResolveVendor(ctx context.Context, from string) (*model.Vendor, error)
	ResolveRfp(ctx context.Context, msg *mailbox.Message, vendor *model.Vendor) (*resolve.Match, error)
}

// Parser extracts proposal fields from a vendor reply.
type Parser interface {
	ParseVendorResponse(ctx context.Context, body string, rfp *model.Rfp) (*model.ParsedProposal, error)
}

// Store is the subset of the persistence layer the engine writes to.
type Store interface {
	CreateEmailLog(ctx context.Context, l *model.EmailLog) error
	UpsertProposal(ctx context.Context, p *model.Proposal) (bool, error)
}

// Engine reconciles inbound messages with proposals.
type Engine struct {
	resolver Resolver
	parser   Parser
	store    Store
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(resolver Resolver, parser Parser, s Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		resolver: resolver,
		parser:   parser,
		store:    s,
		logger:   logger.Named("reconcile"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process reconciles one message. Every message that reaches this point
// gets exactly one EmailLog row. The returned error is non-nil only when
// the database failed; the result then carries ActionFailed. AI failures
// are reported as ActionFailed with a nil error.
func (e *Engine) Process(ctx context.Context, msg *mailbox.Message) (Result, error) {
	res := Result{
		UID:       msg.UID,
		MessageID: msg.MessageID,
		Subject:   msg.Subject,
		From:      msg.From,
	}
	log := e.logger.With(
		zap.Uint32("uid", msg.UID),
		zap.String("from", msg.From),
		zap.String("subject", msg.Subject),
	)

	if msg.Undecodable() {
		if err := e.audit(ctx, msg, nil, nil, &res); err != nil {
			return failed(res, err), err
		}
		log.Warn("recorded undecodable message", zap.String("decode_error", msg.DecodeError))
		res.Action = ActionFailed
		res.Reason = ReasonUndecodable
		return res, nil
	}

	vendor, err := e.resolver.ResolveVendor(ctx, msg.From)
	if err != nil {
		return failed(res, err), err
	}
	if vendor == nil {
		if err := e.audit(ctx, msg, nil, nil, &res); err != nil {
			return failed(res, err), err
		}
		log.Info("skipping message from unknown vendor")
		return skipped(res, ReasonUnknownVendor), nil
	}
	res.VendorID = vendor.ID

	match, err := e.resolver.ResolveRfp(ctx, msg, vendor)
	if err != nil {
		return failed(res, err), err
	}
	if match == nil {
		if err := e.audit(ctx, msg, vendor, nil, &res); err != nil {
			return failed(res, err), err
		}
		log.Info("skipping message, rfp not identified", zap.String("vendor_id", vendor.ID))
		return skipped(res, ReasonRfpNotIdentified), nil
	}
	rfp := match.Rfp
	res.RfpID = rfp.ID
	res.Strategy = match.Strategy

	if err := e.audit(ctx, msg, vendor, rfp, &res); err != nil {
		return failed(res, err), err
	}

	body := msg.BodyText()
	parsed, err := e.parser.ParseVendorResponse(ctx, body, rfp)
	if err != nil {
		log.Warn("failed to parse vendor response",
			zap.String("rfp_id", rfp.ID), zap.Error(err))
		return failed(res, err), nil
	}

	receivedAt := msg.Date
	if receivedAt.IsZero() {
		receivedAt = e.now()
	}
	proposal := &model.Proposal{
		RfpID:            rfp.ID,
		VendorID:         vendor.ID,
		RawContent:       body,
		SourceEmailLogID: res.EmailLogID,
		ReceivedAt:       receivedAt,
	}
	parsed.Apply(proposal, e.now())

	created, err := e.store.UpsertProposal(ctx, proposal)
	if err != nil {
		return failed(res, err), err
	}
	res.ProposalID = proposal.ID

	res.Action = ActionUpdated
	if created {
		res.Action = ActionCreated
	}
	log.Info("reconciled proposal",
		zap.String("action", string(res.Action)),
		zap.String("proposal_id", proposal.ID),
		zap.String("rfp_id", rfp.ID),
		zap.String("vendor_id", vendor.ID),
		zap.String("strategy", match.Strategy),
	)
	return res, nil
}

// audit writes the EmailLog row for msg and records its ID on res.
func (e *Engine) audit(ctx context.Context, msg *mailbox.Message, vendor *model.Vendor, rfp *model.Rfp, res *Result) error {
	entry := &model.EmailLog{
		Direction:   model.DirectionInbound,
		FromAddress: msg.From,
		ToAddress:   firstOrEmpty(msg.To),
		Subject:     msg.Subject,
		Body:        msg.TextBody,
		HTMLBody:    msg.HTMLBody,
		RawPayload:  msg.Snapshot(),
		MessageID:   msg.MessageID,
		Attachments: model.AttachmentsMeta(msg.Attachments),
		Status:      model.EmailLogReceived,
		ReceivedAt:  msg.Date,
	}
	if entry.Body == "" {
		entry.Body = msg.BodyText()
	}
	if vendor != nil {
		entry.VendorID = &vendor.ID
	}
	if rfp != nil {
		entry.RfpID = &rfp.ID
	}

	if err := e.store.CreateEmailLog(ctx, entry); err != nil {
		return err
	}
	res.EmailLogID = entry.ID
	return nil
}

func skipped(res Result, reason string) Result {
	res.Action = ActionSkipped
	res.Reason = reason
	return res
}

func failed(res Result, err error) Result {
	res.Action = ActionFailed
	res.Reason = err.Error()
	return res
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
