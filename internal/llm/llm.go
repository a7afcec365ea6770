// Package llm talks to the hosted generative model. Callers build requests
// from the neutral types below; the Gemini implementation translates them.
package llm

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("model returned no content")

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is either text or a reference to a stored file.
type Part struct {
	Text     string
	FileURI  string
	MIMEType string
}

func Text(s string) Part { return Part{Text: s} }

func File(uri, mimeType string) Part { return Part{FileURI: uri, MIMEType: mimeType} }

type Message struct {
	Role  Role
	Parts []Part
}

type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature *float32
}

type Usage struct {
	Model       string `json:"model"`
	TotalTokens int    `json:"total_tokens"`
}

type Response struct {
	Text  string
	Usage Usage
}

// Generator produces model answers. Stream calls onChunk for every text
// delta and returns the assembled response once the stream is finished.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request, onChunk func(string) error) (*Response, error)
}

func Temperature(t float32) *float32 { return &t }
