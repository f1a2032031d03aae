package api

import "github.com/xraph/bastion"

// ErrorResponse is written for failures the Forge error helpers do not cover.
type ErrorResponse struct {
	Error string `json:"error" description:"Error message"`
}

// BatchAuthorizeResponse contains decisions in request order.
type BatchAuthorizeResponse struct {
	Decisions []*bastion.Decision `json:"decisions" description:"Decisions in request order"`
}

// VerifyAuditResponse reports an audit chain verification.
type VerifyAuditResponse struct {
	Verified int64  `json:"verified" description:"Entries verified before the first break"`
	Intact   bool   `json:"intact" description:"Whether the whole chain verified"`
	Error    string `json:"error,omitempty" description:"First broken link"`
}

// PurgeAuditResponse reports a purge.
type PurgeAuditResponse struct {
	Removed int64 `json:"removed" description:"Number of entries removed"`
}
