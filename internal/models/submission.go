package models

import "time"

// SourceKind says where a submission's asset lives.
type SourceKind string

const (
	SourceFileUpload  SourceKind = "file"
	SourceExternalURL SourceKind = "url"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	return k == SourceFileUpload || k == SourceExternalURL
}

// SubmissionStatus is set to pending on creation and only changed by review.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusReviewed SubmissionStatus = "reviewed"
)

// ExternalAssetName is stored as the asset name of URL submissions.
const ExternalAssetName = "External URL"

// Submission is one artist's application. At most one exists per owner.
type Submission struct {
	ID               string           `json:"_id,omitempty"`
	OwnerID          string           `json:"ownerId"`
	OwnerEmail       string           `json:"ownerEmail"`
	OwnerDisplayName string           `json:"ownerDisplayName"`
	TrackName        string           `json:"trackName"`
	Message          string           `json:"message,omitempty"`
	SourceKind       SourceKind       `json:"sourceKind"`
	AssetLocator     string           `json:"assetLocator"`
	AssetName        string           `json:"assetName"`
	AssetByteSize    int64            `json:"assetByteSize"`
	Status           SubmissionStatus `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
}
