// Package workspace holds the per-user records a maker manages on the
// dashboard: projects, ideas, goals, feedback, directory submissions,
// pricing experiments and public posts.
package workspace

import (
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shiploop/shiploop-api/internal/launch"
)

// Meta is owned by the store; client values are ignored on create and patch.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Record is implemented by every workspace entity. Methods have value
// receivers and return copies so stored snapshots are never mutated.
type Record[T any] interface {
	GetMeta() Meta
	WithMeta(Meta) T
	// SearchText is matched against ?q= queries.
	SearchText() string
	// Normalize validates the record and fills derived fields.
	Normalize(policy *bluemonday.Policy) (T, error)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s", field, strings.Join(allowed, ", "))
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

type Project struct {
	Meta
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Status      string `json:"status"`
	MRR         int64  `json:"mrr"` // cents
	Users       int    `json:"users"`
}

func (p Project) GetMeta() Meta { return p.Meta }
func (p Project) WithMeta(m Meta) Project { p.Meta = m; return p }
func (p Project) SearchText() string { return p.Name }
func (p Project) Normalize(_ *bluemonday.Policy) (Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := required("name", p.Name); err != nil {
		return p, err
	}
	if p.Status == "" {
		p.Status = "building"
	}
	if p.MRR < 0 || p.Users < 0 {
		return p, fmt.Errorf("mrr and users must not be negative")
	}
	return p, oneOf("status", p.Status, "idea", "building", "launched", "paused")
}

type Idea struct {
	Meta
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	// Score is the maker's own 1-10 rating.
	Score     int    `json:"score"`
	ProjectID string `json:"projectId,omitempty"`
}

func (i Idea) GetMeta() Meta { return i.Meta }
func (i Idea) WithMeta(m Meta) Idea { i.Meta = m; return i }
func (i Idea) SearchText() string { return i.Title + " " + strings.Join(i.Tags, " ") }
func (i Idea) Normalize(_ *bluemonday.Policy) (Idea, error) {
	i.Title = strings.TrimSpace(i.Title)
	if err := required("title", i.Title); err != nil {
		return i, err
	}
	if i.Score < 0 || i.Score > 10 {
		return i, fmt.Errorf("score must be between 0 and 10")
	}
	return i, nil
}

type Goal struct {
	Meta
	Title      string        `json:"title"`
	ProjectID  string        `json:"projectId,omitempty"`
	Deadline   *time.Time    `json:"deadline,omitempty"`
	Milestones []launch.Item `json:"milestones"`
	Progress   int           `json:"progress"`
	Status     launch.Status `json:"status"`
}

func (g Goal) GetMeta() Meta { return g.Meta }
func (g Goal) WithMeta(m Meta) Goal { g.Meta = m; return g }
func (g Goal) SearchText() string { return g.Title }
func (g Goal) Normalize(_ *bluemonday.Policy) (Goal, error) {
	g.Title = strings.TrimSpace(g.Title)
	if err := required("title", g.Title); err != nil {
		return g, err
	}
	milestones := make([]launch.Item, len(g.Milestones))
	copy(milestones, g.Milestones)
	g.Milestones = milestones
	for i := range g.Milestones {
		if g.Milestones[i].ID == "" {
			g.Milestones[i].ID = fmt.Sprintf("m%d", i+1)
		}
	}
	g.Progress = launch.Progress(g.Milestones)
	g.Status = launch.StatusFor(g.Progress)
	return g, nil
}

type Feedback struct {
	Meta
	ProjectID string `json:"projectId,omitempty"`
	Author    string `json:"author,omitempty"`
	Source    string `json:"source,omitempty"`
	Body      string `json:"body"`
	Sentiment string `json:"sentiment"`
}

func (f Feedback) GetMeta() Meta { return f.Meta }
func (f Feedback) WithMeta(m Meta) Feedback { f.Meta = m; return f }
func (f Feedback) SearchText() string { return f.Author + " " + f.Body }
func (f Feedback) Normalize(policy *bluemonday.Policy) (Feedback, error) {
	f.Body = strings.TrimSpace(policy.Sanitize(f.Body))
	if err := required("body", f.Body); err != nil {
		return f, err
	}
	if f.Sentiment == "" {
		f.Sentiment = "neutral"
	}
	return f, oneOf("sentiment", f.Sentiment, "positive", "neutral", "negative")
}

type DirectorySubmission struct {
	Meta
	ProjectID   string     `json:"projectId,omitempty"`
	Directory   string     `json:"directory"`
	URL         string     `json:"url,omitempty"`
	Status      string     `json:"status"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

func (d DirectorySubmission) GetMeta() Meta { return d.Meta }
func (d DirectorySubmission) WithMeta(m Meta) DirectorySubmission {
	d.Meta = m
	return d
}
func (d DirectorySubmission) SearchText() string { return d.Directory }
func (d DirectorySubmission) Normalize(_ *bluemonday.Policy) (DirectorySubmission, error) {
	d.Directory = strings.TrimSpace(d.Directory)
	if err := required("directory", d.Directory); err != nil {
		return d, err
	}
	if d.Status == "" {
		d.Status = "pending"
	}
	return d, oneOf("status", d.Status, "pending", "submitted", "live", "rejected")
}

type PricingExperiment struct {
	Meta
	ProjectID      string  `json:"projectId,omitempty"`
	Name           string  `json:"name"`
	Variant        string  `json:"variant,omitempty"`
	PriceCents     int64   `json:"priceCents"`
	Visitors       int     `json:"visitors"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
}

func (p PricingExperiment) GetMeta() Meta { return p.Meta }
func (p PricingExperiment) WithMeta(m Meta) PricingExperiment {
	p.Meta = m
	return p
}
func (p PricingExperiment) SearchText() string { return p.Name + " " + p.Variant }
func (p PricingExperiment) Normalize(_ *bluemonday.Policy) (PricingExperiment, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := required("name", p.Name); err != nil {
		return p, err
	}
	if p.PriceCents < 0 || p.Visitors < 0 || p.Conversions < 0 {
		return p, fmt.Errorf("price, visitors and conversions must not be negative")
	}
	if p.Conversions > p.Visitors {
		return p, fmt.Errorf("conversions cannot exceed visitors")
	}
	p.ConversionRate = 0
	if p.Visitors > 0 {
		p.ConversionRate = float64(p.Conversions) / float64(p.Visitors) * 100
	}
	return p, nil
}

type PublicPost struct {
	Meta
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

func (p PublicPost) GetMeta() Meta { return p.Meta }
func (p PublicPost) WithMeta(m Meta) PublicPost { p.Meta = m; return p }
func (p PublicPost) SearchText() string { return p.Title }
func (p PublicPost) Normalize(policy *bluemonday.Policy) (PublicPost, error) {
	p.Title = strings.TrimSpace(p.Title)
	if err := required("title", p.Title); err != nil {
		return p, err
	}
	p.Body = policy.Sanitize(p.Body)
	switch {
	case p.Published && p.PublishedAt == nil:
		now := time.Now().UTC()
		p.PublishedAt = &now
	case !p.Published:
		p.PublishedAt = nil
	}
	return p, nil
}
