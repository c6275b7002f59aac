package domain

import "strings"

// Normalized campaign statuses.
const (
	CampaignDrafted   = "DRAFTED"
	CampaignActive    = "ACTIVE"
	CampaignPaused    = "PAUSED"
	CampaignStopped   = "STOPPED"
	CampaignCompleted = "COMPLETED"
)

var campaignStatusMap = map[string]string{
	"DRAFTED":          CampaignDrafted,
	"DRAFT":            CampaignDrafted,
	"LAUNCHING":        CampaignDrafted,
	"QUEUED":           CampaignDrafted,
	"ACTIVE":           CampaignActive,
	"START":            CampaignActive,
	"STARTED":          CampaignActive,
	"RUNNING":          CampaignActive,
	"PAUSED":           CampaignPaused,
	"PAUSE":            CampaignPaused,
	"STOPPED":          CampaignStopped,
	"STOP":             CampaignStopped,
	"ARCHIVED":         CampaignStopped,
	"DELETED":          CampaignStopped,
	"FAILED":           CampaignStopped,
	"PENDING DELETION": CampaignStopped,
	"COMPLETED":        CampaignCompleted,
	"DONE":             CampaignCompleted,
}

// NormalizeCampaignStatus maps a provider campaign status onto the local
// status set. Unknown values fall back to DRAFTED.
func NormalizeCampaignStatus(value string) string {
	if value == "" {
		return CampaignDrafted
	}
	if s, ok := campaignStatusMap[strings.ToUpper(strings.TrimSpace(value))]; ok {
		return s
	}
	return CampaignDrafted
}

var leadStatusMap = map[string]string{
	"active":            "active",
	"verified":          "active",
	"in_sequence":       "active",
	"paused":            "paused",
	"pause":             "paused",
	"sequence_stopped":  "paused",
	"unsubscribed":      "unsubscribed",
	"unsubscribe":       "unsubscribed",
	"replied":           "replied",
	"reply":             "replied",
	"bounced":           "bounced",
	"bounce":            "bounced",
	"pending":           "pending",
	"verifying":         "pending",
	"unverified":        "pending",
	"unknown":           "pending",
	"risky":             "pending",
	"inactive":          "pending",
	"never_contacted":   "pending",
	"contacted":         "contacted",
	"sequence_finished": "contacted",
	"connected":         "connected",
	"not_interested":    "not_interested",
	"not interested":    "not_interested",
}

// NormalizeLeadStatus maps a provider lead status onto the local set.
func NormalizeLeadStatus(value string) string {
	if value == "" {
		return "unknown"
	}
	if s, ok := leadStatusMap[strings.ToLower(strings.TrimSpace(value))]; ok {
		return s
	}
	return "unknown"
}

// NormalizeMessageDirection collapses provider direction hints into
// inbound/outbound/unknown.
func NormalizeMessageDirection(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "inbound", "reply", "replied":
		return "inbound"
	case "outbound", "sent":
		return "outbound"
	}
	return "unknown"
}

var pieceStatusMap = map[string]string{
	"queued":                 "queued",
	"created":                "queued",
	"processing":             "processing",
	"rendered":               "processing",
	"processed_for_delivery": "ready_for_mail",
	"ready_for_mail":         "ready_for_mail",
	"mailed":                 "in_transit",
	"in_transit":             "in_transit",
	"in_local_area":          "in_transit",
	"re-routed":              "in_transit",
	"delivered":              "delivered",
	"returned":               "returned",
	"returned_to_sender":     "returned",
	"canceled":               "canceled",
	"cancelled":              "canceled",
	"failed":                 "failed",
}

// NormalizeMailPieceStatus maps a tracking event status (or the suffix of
// a piece.* event type) onto the local mail-piece status set.
func NormalizeMailPieceStatus(value string) string {
	key := strings.ToLower(strings.TrimSpace(value))
	if i := strings.LastIndex(key, "."); i >= 0 {
		key = key[i+1:]
	}
	if s, ok := pieceStatusMap[key]; ok {
		return s
	}
	return "unknown"
}
