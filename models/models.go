package models

import (
	"strings"
	"time"
)

// TimeLayout is the timestamp format used on the wire. Values are always UTC
// and carry no zone suffix.
const TimeLayout = "2006-01-02T15:04:05"

// AnonymousAuthor is shown for moments posted without an author name
const AnonymousAuthor = "Anonymous"

// Moment is a single short text post
type Moment struct {
	Id         int64     `json:"id"`
	Text       string    `json:"text"`
	AuthorName string    `json:"authorName,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
}

// IsDraft reports whether the moment has not been stored by the server yet
func (m Moment) IsDraft() bool {
	return m.Id == 0
}

// DisplayAuthor returns the author name, or AnonymousAuthor when it is empty
func (m Moment) DisplayAuthor() string {
	if strings.TrimSpace(m.AuthorName) == "" {
		return AnonymousAuthor
	}
	return m.AuthorName
}

// Byline renders the info line shown under a moment in a list
func (m Moment) Byline() string {
	return "Posted on " + m.AddedAt.UTC().Format("2006-01-02 15:04") + " by " + m.DisplayAuthor()
}

// PagedResult is one page of moments as returned by a list call
type PagedResult struct {
	Items   []Moment
	Cursor  *string
	HasMore bool
}

// NewPagedResult derives HasMore from the page contents: there is more only
// when the server returned an item list and a cursor to continue from.
func NewPagedResult(items []Moment, cursor *string) *PagedResult {
	return &PagedResult{
		Items:   items,
		Cursor:  cursor,
		HasMore: items != nil && cursor != nil,
	}
}

// Wire payloads shared by the API client and the development server

type MomentPayload struct {
	Id         int64  `json:"id"`
	Text       string `json:"text"`
	AuthorName string `json:"author_name"`
	Added      string `json:"added"`
}

type ListResponse struct {
	Cursor  *string         `json:"cursor"`
	Moments []MomentPayload `json:"moments"`
}

type CreateRequest struct {
	Text       string `json:"text"`
	AuthorName string `json:"author_name"`
}

type ErrorBody struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ToPayload converts a stored moment to its wire form
func (m Moment) ToPayload() MomentPayload {
	return MomentPayload{
		Id:         m.Id,
		Text:       m.Text,
		AuthorName: m.AuthorName,
		Added:      FormatTime(m.AddedAt),
	}
}

// FormatTime formats t in the wire layout, converting to UTC first
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a wire timestamp as UTC
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}
