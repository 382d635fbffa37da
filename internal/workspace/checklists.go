package workspace

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/launch"
)

// Checklists holds each user's launch checklists, seeded from the defaults
// on first access.
type Checklists struct {
	users *xsync.MapOf[string, []launch.Checklist]
}

func NewChecklists() *Checklists {
	return &Checklists{users: xsync.NewMapOf[string, []launch.Checklist]()}
}

func defaults() []launch.Checklist {
	out := make([]launch.Checklist, len(launch.Platforms))
	for i, p := range launch.Platforms {
		out[i] = launch.DefaultChecklist(p)
	}
	return out
}

func (c *Checklists) List(user string) []launch.Checklist {
	lists, _ := c.users.LoadOrCompute(user, defaults)
	out := make([]launch.Checklist, len(lists))
	copy(out, lists)
	return out
}

// Toggle flips one item on a platform's checklist and returns the new list.
func (c *Checklists) Toggle(user, platform, itemID string) (launch.Checklist, error) {
	p, err := launch.ParsePlatform(platform)
	if err != nil {
		return launch.Checklist{}, errors.NewValidationError(err.Error())
	}

	var (
		toggled launch.Checklist
		opErr   error
	)
	c.users.Compute(user, func(old []launch.Checklist, loaded bool) ([]launch.Checklist, bool) {
		if !loaded {
			old = defaults()
		}
		next := make([]launch.Checklist, len(old))
		copy(next, old)
		for i := range next {
			if next[i].Platform != p {
				continue
			}
			toggled, opErr = next[i].Toggle(itemID)
			if opErr != nil {
				opErr = errors.NewNotFoundError("checklist item")
				return old, false
			}
			next[i] = toggled
			return next, false
		}
		opErr = errors.NewNotFoundError("checklist")
		return old, false
	})
	return toggled, opErr
}
