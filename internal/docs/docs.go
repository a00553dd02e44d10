// Package docs fetches the ruleset documents the system prompt is built from.
package docs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stupiduntilnot/nomic-lawyer/internal/control"
)

// Document names one of the ruleset documents.
type Document string

const (
	Rules   Document = "rules"
	Agendas Document = "agendas"
	Players Document = "players"
)

// Fetcher returns the decoded UTF-8 text stored at path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (string, error)
}

// FetchError reports a failed document fetch. The message names the
// document only; Unwrap exposes the cause.
type FetchError struct {
	Document Document
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s from GitHub", e.Document)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Paths locates each document in the repository.
type Paths struct {
	Rules   string
	Agendas string
	Players string
}

// DefaultPaths returns the document locations of the upstream game repo.
func DefaultPaths() Paths {
	return Paths{Rules: "rules.md", Agendas: "agendas.md", Players: "players.md"}
}

// Bundle holds the fetched documents.
type Bundle struct {
	Rules   string
	Agendas string
	Players string
}

// Loader fetches the full Bundle.
type Loader struct {
	fetcher Fetcher
	paths   Paths
	timeout time.Duration
	log     zerolog.Logger
}

func NewLoader(fetcher Fetcher, paths Paths, timeout time.Duration, log zerolog.Logger) *Loader {
	return &Loader{fetcher: fetcher, paths: paths, timeout: timeout, log: log.With().Str("component", "docs").Logger()}
}

// Load fetches the three documents in parallel under one timeout. The first
// failure cancels the others and is returned as a *FetchError.
func (l *Loader) Load(ctx context.Context) (Bundle, error) {
	ctx, cancel := control.WithTimeout(ctx, l.timeout)
	defer cancel()

	var b Bundle
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(doc Document, path string, dst *string) {
		g.Go(func() error {
			start := time.Now()
			text, err := l.fetcher.Fetch(gctx, path)
			if err != nil {
				l.log.Warn().Err(err).Str("document", string(doc)).Str("path", path).Msg("Document fetch failed")
				return &FetchError{Document: doc, Err: err}
			}
			l.log.Debug().
				Str("document", string(doc)).
				Int("bytes", len(text)).
				Dur("elapsed", time.Since(start)).
				Msg("Document fetched")
			*dst = text
			return nil
		})
	}
	fetch(Rules, l.paths.Rules, &b.Rules)
	fetch(Agendas, l.paths.Agendas, &b.Agendas)
	fetch(Players, l.paths.Players, &b.Players)

	if err := g.Wait(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}
