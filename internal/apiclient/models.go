package apiclient

import "time"

// ConvertRequest is the body of POST /api/v2/convert.
type ConvertRequest struct {
	FileID  string `json:"fileId"`
	Format  string `json:"convertToFormat"`
	Quality int    `json:"imageQuality"`
}

// FileMetadata describes the converted file as reported by the service.
type FileMetadata struct {
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// ConversionOutcome is the result descriptor of one conversion.
type ConversionOutcome struct {
	FileID      string
	Filename    string
	DownloadURL string
	PreviewURL  string
	// Data holds the converted bytes when the service inlines them.
	Data       []byte
	Metadata   FileMetadata
	Elapsed    time.Duration
	ServerTime string
}

type convertResponse struct {
	Data        string       `json:"data"`
	PreviewURL  string       `json:"previewUrl"`
	DownloadURL string       `json:"downloadUrl"`
	Filename    string       `json:"filename"`
	FileID      string       `json:"fileId"`
	Metadata    FileMetadata `json:"metadata"`
	Error       bool         `json:"error"`
	ErrorMsg    string       `json:"errorMsg"`
}

// WaitlistEntry is the body of POST /api/waitlist.
type WaitlistEntry struct {
	FeatureID      string `json:"featureId"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	IsEarlyAdopter bool   `json:"isEarlyAdopter"`
}
