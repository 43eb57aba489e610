package domain

import (
	"context"
	"time"
)

// ProgressStage names a checkpoint reported to the caller.
type ProgressStage string

const (
	StageQuoteObtained     ProgressStage = "quote_obtained"
	StageApprovalSubmitted ProgressStage = "approval_submitted"
	StageApprovalConfirmed ProgressStage = "approval_confirmed"
	StageTxSubmitted       ProgressStage = "tx_submitted"
	StageTxConfirmed       ProgressStage = "tx_confirmed"
	StageTxFailed          ProgressStage = "tx_failed"
	StageTxTimedOut        ProgressStage = "tx_timed_out"
	StageShortfall         ProgressStage = "shortfall"
	StageSummary           ProgressStage = "summary"
)

// ProgressEvent is one checkpoint.
type ProgressEvent struct {
	TraceID     string        `json:"trace_id"`
	Caller      string        `json:"caller"`
	Stage       ProgressStage `json:"stage"`
	HopIndex    int           `json:"hop_index"`
	TxHash      string        `json:"tx_hash,omitempty"`
	Message     string        `json:"message"`
	ExplorerURL string        `json:"explorer_url,omitempty"`
	At          time.Time     `json:"at"`
}

// NopProgress discards events.
type NopProgress struct{}

func (NopProgress) Progress(_ context.Context, _ ProgressEvent) {}
