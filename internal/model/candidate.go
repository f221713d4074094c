package model

// Document is one raw source document collected for an organization:
// a search snippet, a scraped page body, or a synthetic page built from
// an upstream client. Recency is positional: callers append newer
// documents after older ones.
type Document struct {
	URL        string  `json:"url"`
	Title      string  `json:"title,omitempty"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// RawCandidate is one person mention extracted from one document.
// Immutable once produced; many candidates may refer to the same person.
type RawCandidate struct {
	Name             string  `json:"name"`
	RoleText         string  `json:"role_text"`
	PhoneRaw         string  `json:"phone_raw,omitempty"`
	EmailRaw         string  `json:"email_raw,omitempty"`
	LinkedInRaw      string  `json:"linkedin_raw,omitempty"`
	SourceURL        string  `json:"source_url"`
	SourceConfidence float64 `json:"source_confidence"`
}
