package models

import (
	"fmt"
	"time"
)

type Status string

// The five statuses are a closed vocabulary; consumers must handle all of them.
const (
	PostStatusDraft     Status = "draft"
	PostStatusScheduled Status = "scheduled"
	PostStatusQueued    Status = "queued"
	PostStatusPosted    Status = "posted"
	PostStatusFailed    Status = "failed"
)

var AllStatuses = []Status{
	PostStatusDraft,
	PostStatusScheduled,
	PostStatusQueued,
	PostStatusPosted,
	PostStatusFailed,
}

func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown post status %q", s)
}

type Provider string

const (
	ProviderX         Provider = "x"
	ProviderInstagram Provider = "instagram"
)

var AllProviders = []Provider{ProviderX, ProviderInstagram}

func (p Provider) Valid() bool {
	return p == ProviderX || p == ProviderInstagram
}

// Intent is what the operator asked for when creating a post.
type Intent string

const (
	IntentDraft    Intent = "draft"
	IntentNow      Intent = "now"
	IntentSchedule Intent = "schedule"
)

// Image is either inline bytes or a URL to an already hosted image.
type Image struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type,omitempty"`
}

func (i *Image) IsZero() bool {
	return i == nil || (i.URL == "" && len(i.Data) == 0)
}

func (i *Image) Inline() bool {
	return i != nil && len(i.Data) > 0
}

type Post struct {
	ID             string     `db:"id" json:"id"`
	Content        string     `db:"content" json:"content"`
	Hashtags       string     `db:"hashtags" json:"hashtags"`
	Image          *Image     `json:"image,omitempty"`
	Provider       Provider   `db:"provider" json:"provider"`
	AccountID      string     `db:"account_id" json:"account_id,omitempty"`
	ScheduledAt    *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Status         Status     `db:"status" json:"status"`
	ProviderPostID string     `db:"provider_post_id" json:"provider_post_id,omitempty"`
	FailureReason  string     `db:"failure_reason" json:"failure_reason,omitempty"`
	Attempts       int        `db:"attempts" json:"attempts"`
	PostedAt       *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Text is what gets published: the caption followed by the hashtags.
func (p *Post) Text() string {
	return ComposeText(p.Content, p.Hashtags)
}

func ComposeText(content, hashtags string) string {
	if hashtags == "" {
		return content
	}
	if content == "" {
		return hashtags
	}
	return content + "\n\n" + hashtags
}

// PostUpdate is a partial update. Nil fields are left untouched. When IfStatus
// is set the update only applies if the stored status still equals it.
type PostUpdate struct {
	IfStatus Status

	Status         *Status
	Content        *string
	Hashtags       *string
	Image          *Image
	ClearImage     bool
	ScheduledAt    *time.Time
	ClearSchedule  bool
	ProviderPostID *string
	FailureReason  *string
	Attempts       *int
	PostedAt       *time.Time
}

type PostFilter struct {
	Status    Status
	Provider  Provider
	AccountID string
	Limit     uint64
	Offset    uint64
}
