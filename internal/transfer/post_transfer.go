package transfer

import "time"

// PostCreation is the body of POST /api/posts/create. Intent is the explicit
// discriminator; PostNow and ScheduledAt are the older form and only apply
// when Intent is empty.
type PostCreation struct {
	Content     string     `json:"content"`
	Hashtags    string     `json:"hashtags"`
	Provider    string     `json:"provider"`
	AccountID   string     `json:"accountId"`
	Intent      string     `json:"intent"`
	PostNow     bool       `json:"postNow"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	ImageURL    string     `json:"imageUrl"`
	ImageBase64 string     `json:"imageBase64"`
}

// PostEdit is a partial update. Nil fields are left as they are.
type PostEdit struct {
	Content     *string    `json:"content"`
	Hashtags    *string    `json:"hashtags"`
	ImageURL    *string    `json:"imageUrl"`
	ImageBase64 *string    `json:"imageBase64"`
	RemoveImage bool       `json:"removeImage"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
}

type CloneRequest struct {
	Provider string `json:"provider"`
}

type GenerateRequest struct {
	Topic string `json:"topic"`
	Style string `json:"style,omitempty"`
}

type GeneratedContent struct {
	Caption       string `json:"caption"`
	Hashtags      string `json:"hashtags"`
	ImageBase64   string `json:"imageBase64,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	ImageMimeType string `json:"imageMimeType,omitempty"`
}
