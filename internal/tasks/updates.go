package tasks

import (
	"fmt"

	"github.com/desertthunder/bcx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchFolder Phase = iota
	FolderFailed
	ResolveEmbeds
	MarkSeen
	DeleteMessages
	CollectDone
)

func (p Phase) String() string {
	switch p {
	case FetchFolder:
		return "fetch_folder"
	case FolderFailed:
		return "folder_failed"
	case ResolveEmbeds:
		return "resolve_embeds"
	case MarkSeen:
		return "mark_seen"
	case DeleteMessages:
		return "delete_messages"
	case CollectDone:
		return "collect_done"
	default:
		return ""
	}
}

func fetchFolderUpdate(step, total int, spec models.FolderSpec) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchFolder,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching %s (genre %s)...", spec.Path, spec.Genre),
		Data:    spec,
	}
}

func folderFailedUpdate(step, total int, spec models.FolderSpec, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FolderFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Skipping %s: %v", spec.Path, err),
		Data:    err,
	}
}

func resolveEmbedUpdate(step, total int, url string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveEmbeds,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Resolved embed %d/%d: %s", step, total, url),
		Data:    url,
	}
}

func markSeenUpdate(count int, folder string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MarkSeen,
		Step:    count,
		Total:   count,
		Message: fmt.Sprintf("Marked %d messages as read in %s", count, folder),
	}
}

func deleteUpdate(count int, folder string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DeleteMessages,
		Step:    count,
		Total:   count,
		Message: fmt.Sprintf("Deleted %d messages from %s", count, folder),
	}
}

func collectDoneUpdate(result *CollectResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CollectDone,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Collected %d albums (%d new, %d cached)", len(result.Albums), result.Resolved, result.Cached),
		Data:    result,
	}
}
