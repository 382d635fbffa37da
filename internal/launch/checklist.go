// Package launch tracks per-platform launch readiness checklists.
package launch

import (
	"fmt"
	"math"
)

type Platform string

const (
	ProductHunt  Platform = "product_hunt"
	HackerNews   Platform = "hacker_news"
	Reddit       Platform = "reddit"
	IndieHackers Platform = "indie_hackers"
	Twitter      Platform = "twitter"
	BetaList     Platform = "betalist"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{ProductHunt, HackerNews, Reddit, IndieHackers, Twitter, BetaList}

func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown launch platform %q", s)
}

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
)

type Item struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

type Checklist struct {
	Platform Platform `json:"platform"`
	Items    []Item   `json:"items"`
	Progress int      `json:"progress"`
	Status   Status   `json:"status"`
}

// Progress returns round(100 * completed / total). An empty list is 0.
func Progress(items []Item) int {
	if len(items) == 0 {
		return 0
	}
	done := 0
	for _, it := range items {
		if it.Completed {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(items))))
}

// StatusFor maps a progress percentage to a checklist status.
func StatusFor(progress int) Status {
	switch {
	case progress <= 0:
		return StatusNotStarted
	case progress >= 100:
		return StatusReady
	default:
		return StatusInProgress
	}
}

// NewChecklist builds a checklist with derived progress and status.
func NewChecklist(p Platform, items []Item) Checklist {
	progress := Progress(items)
	return Checklist{
		Platform: p,
		Items:    items,
		Progress: progress,
		Status:   StatusFor(progress),
	}
}

// Toggle flips one item and returns a new checklist; c is not modified.
func (c Checklist) Toggle(itemID string) (Checklist, error) {
	items := make([]Item, len(c.Items))
	copy(items, c.Items)

	for i := range items {
		if items[i].ID == itemID {
			items[i].Completed = !items[i].Completed
			return NewChecklist(c.Platform, items), nil
		}
	}
	return c, fmt.Errorf("item %q not found on %s checklist", itemID, c.Platform)
}

// DefaultChecklist returns the starter checklist for a platform.
func DefaultChecklist(p Platform) Checklist {
	labels := templates[p]
	items := make([]Item, len(labels))
	for i, label := range labels {
		items[i] = Item{ID: fmt.Sprintf("%s-%d", p, i+1), Label: label}
	}
	return NewChecklist(p, items)
}

var templates = map[Platform][]string{
	ProductHunt: {
		"Create maker profile",
		"Prepare gallery images",
		"Write tagline and description",
		"Record demo video",
		"Line up a hunter",
		"Schedule launch for 12:01 AM PT",
		"Draft first comment",
	},
	HackerNews: {
		"Write Show HN title",
		"Prepare technical write-up",
		"Make landing page load fast",
		"Be online to answer comments",
	},
	Reddit: {
		"Pick relevant subreddits",
		"Read each subreddit's self-promotion rules",
		"Write a value-first post",
		"Reply to every comment",
	},
	IndieHackers: {
		"Create product page",
		"Share revenue milestone",
		"Write launch story",
	},
	Twitter: {
		"Write launch thread",
		"Record short demo GIF",
		"Ask friends to amplify",
		"Pin launch tweet",
	},
	BetaList: {
		"Submit startup",
		"Add screenshots",
		"Set up waitlist landing page",
	},
}
