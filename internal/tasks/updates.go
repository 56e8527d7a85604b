package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Domain  string // Server the update is about, if any
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	VerifyDomain Phase = iota
	RegisterClient
	Authorize
	ExchangeCode
	StoreLink
	FetchTimeline
	MergeFeed
)

func (p Phase) String() string {
	switch p {
	case VerifyDomain:
		return "verify_domain"
	case RegisterClient:
		return "register_client"
	case Authorize:
		return "authorize"
	case ExchangeCode:
		return "exchange_code"
	case StoreLink:
		return "store_link"
	case FetchTimeline:
		return "fetch_timeline"
	case MergeFeed:
		return "merge_feed"
	default:
		return ""
	}
}

// sendProgress delivers update without blocking; a full or nil channel drops it.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchingUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTimeline,
		Total:   total,
		Message: fmt.Sprintf("Fetching home timelines from %d servers...", total),
	}
}

func fetchedUpdate(step, total int, domain string, posts int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTimeline,
		Step:    step,
		Total:   total,
		Domain:  domain,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d posts)", step, total, domain, posts),
	}
}

func fetchFailedUpdate(step, total int, domain string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTimeline,
		Step:    step,
		Total:   total,
		Domain:  domain,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, domain, err),
	}
}

func mergedUpdate(result *FeedResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MergeFeed,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Merged %d posts from %d servers", len(result.Posts), result.Servers-len(result.Failures)),
		Data:    result,
	}
}

func linkUpdate(phase Phase, domain, message string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Domain:  domain,
		Message: message,
	}
}
