package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/procurement-inbox/internal/reconcile"
	"github.com/nhle/procurement-inbox/internal/sync"
)

func TestRenderSummary(t *testing.T) {
	out := renderSummary(&sync.Summary{
		Fetched: 3,
		Ignored: 1,
		Created: 1,
		Skipped: 1,
		Results: []reconcile.Result{
			{Action: reconcile.ActionCreated, From: "sales@acme.com", Subject: "Re: RFP-A1B2C3D4"},
			{Action: reconcile.ActionSkipped, From: "x@y.com", Subject: "Quote", Reason: reconcile.ReasonUnknownVendor},
		},
	})

	assert.Contains(t, out, "Fetch complete")
	assert.Contains(t, out, "sales@acme.com")
	assert.Contains(t, out, "unknown vendor")
	assert.NotContains(t, out, "Error")
}

func TestRenderSummary_Aborted(t *testing.T) {
	out := renderSummary(&sync.Summary{Aborted: true, Error: "persistence: inserting proposal: locked"})

	assert.Contains(t, out, "Fetch aborted")
	assert.Contains(t, out, "locked")
}

func TestRenderConnection(t *testing.T) {
	ok := renderConnection(&sync.ConnectionReport{OK: true, Folder: "INBOX", Messages: 7, Mailboxes: []string{"INBOX", "Sent"}})
	assert.Contains(t, ok, "INBOX (7 messages)")
	assert.Contains(t, ok, "INBOX, Sent")

	failed := renderConnection(&sync.ConnectionReport{Error: "mailbox dial (x:993): refused"})
	assert.Contains(t, failed, "failed")
	assert.Contains(t, failed, "refused")
}
