package models

import "time"

// RequestMode identifies which generation flow produced a request.
type RequestMode string

const (
	ModeTextToImage         RequestMode = "text_to_image"
	ModeImageToImage        RequestMode = "image_to_image"
	ModeTextAndImageToImage RequestMode = "text_and_image_to_image"
)

// Valid reports whether the mode is one of the supported generation flows.
func (m RequestMode) Valid() bool {
	switch m {
	case ModeTextToImage, ModeImageToImage, ModeTextAndImageToImage:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of a generation request.
// A request starts pending and moves exactly once to completed or failed.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusFailed    RequestStatus = "failed"
)

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GenerationRequest is one tracked call to the image generator.
// CreatedAt is the quota accounting instant: the slot is charged at
// admission, not at completion.
type GenerationRequest struct {
	ID             int64
	UserID         int64
	Mode           RequestMode
	InputText      string
	InputImageRef  string
	OutputImageRef string
	Status         RequestStatus
	ErrorDetail    string
	CreatedAt      time.Time
}

// RateLimitCounter is the singleton backend-wide quota row (id = 1).
type RateLimitCounter struct {
	MinuteCount       int
	MinuteWindowStart time.Time
	DayCount          int
	DayWindowStart    time.Time
}

// RequestStats aggregates a user's request history by mode and status.
type RequestStats struct {
	Total               int
	TextToImage         int
	ImageToImage        int
	TextAndImageToImage int
	Completed           int
	Failed              int
	Pending             int
}
