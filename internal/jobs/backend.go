package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
)

// Backend performs the slow extraction for one document.
type Backend interface {
	Run(ctx context.Context, documentID string) (*Result, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, documentID string) (*Result, error)

func (f BackendFunc) Run(ctx context.Context, documentID string) (*Result, error) {
	return f(ctx, documentID)
}

// Parser returns the parsed text of a document.
type Parser interface {
	Parse(ctx context.Context, documentID string) (string, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, documentID string) (string, error)

func (f ParserFunc) Parse(ctx context.Context, documentID string) (string, error) {
	return f(ctx, documentID)
}

// Classifier turns text into an entity map.
type Classifier interface {
	Classify(ctx context.Context, text string) (content.EntityMap, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, text string) (content.EntityMap, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (content.EntityMap, error) {
	return f(ctx, text)
}

// Pipeline is the standard backend: parse the document, then classify its
// text. A nil Classifier yields an empty entity map.
type Pipeline struct {
	Parser     Parser
	Classifier Classifier
}

func (p Pipeline) Run(ctx context.Context, documentID string) (*Result, error) {
	text, err := p.Parser.Parse(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: parse %s: %w", documentID, err)
	}

	entities := content.EntityMap{}
	if p.Classifier != nil && strings.TrimSpace(text) != "" {
		entities, err = p.Classifier.Classify(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("extraction failed: classify %s: %w", documentID, err)
		}
	}
	return &Result{DocumentID: documentID, Text: text, Entities: entities}, nil
}

// ChainParser asks each parser in turn and returns the first answer that is
// not a NotFoundError.
type ChainParser []Parser

func (c ChainParser) Parse(ctx context.Context, documentID string) (string, error) {
	var lastErr error = &core.NotFoundError{Kind: "document", Key: documentID}
	for _, p := range c {
		text, err := p.Parse(ctx, documentID)
		if err == nil {
			return text, nil
		}
		if !core.IsNotFound(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
