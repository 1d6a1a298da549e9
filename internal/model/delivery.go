package model

import "time"

// DeliveryKind says why a notification mail was sent.
type DeliveryKind string

const (
	DeliveryKindTest      DeliveryKind = "test"
	DeliveryKindScheduled DeliveryKind = "scheduled"
	DeliveryKindManual    DeliveryKind = "manual"
)

// DeliveryStatus is the outcome of one notification attempt.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// Delivery records one notification mail attempt.
type Delivery struct {
	// ID is the unique identifier for this delivery.
	ID string `json:"id" db:"id"`

	Kind DeliveryKind `json:"kind" db:"kind"`

	// Subject is the mail subject line.
	Subject string `json:"subject" db:"subject"`

	// Recipients lists the envelope recipients that parsed successfully.
	Recipients []string `json:"recipients" db:"-"`

	Status DeliveryStatus `json:"status" db:"status"`

	// Error holds the failure reason when Status is failed.
	Error string `json:"error,omitempty" db:"error"`

	// ScreenshotBytes and DumpBytes are the attachment sizes.
	ScreenshotBytes int `json:"screenshot_bytes" db:"screenshot_bytes"`
	DumpBytes       int `json:"dump_bytes" db:"dump_bytes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
