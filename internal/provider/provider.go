// Package provider produces the source material a deck is built from, either
// from uploaded files or from web research.
package provider

import (
	"context"
	"errors"

	"deckflow/internal/model"
)

const (
	OriginFiles    = "files"
	OriginResearch = "research"
)

var (
	// ErrNoInput is returned when a provider is given nothing to work with.
	ErrNoInput = errors.New("no input for content provider")
	// ErrAllFilesFailed is returned when no uploaded file could be digested.
	ErrAllFilesFailed = errors.New("every file failed to digest")
)

// Provider turns a request into source material.
type Provider interface {
	Provide(ctx context.Context, req model.Request) (*model.SourceMaterial, error)
}

// Route picks the file provider when the request carries files and the
// research provider otherwise.
func Route(req model.Request) string {
	if len(req.Files) > 0 {
		return OriginFiles
	}
	return OriginResearch
}
