// Package suggest turns a note into folder and tag suggestions using the
// hybrid ranker.
package suggest

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/Aman-CERP/foldrank/internal/errors"
	"github.com/Aman-CERP/foldrank/internal/search"
)

const (
	// DefaultFolderCount is how many folders are suggested when unspecified.
	DefaultFolderCount = 2

	// DefaultTagCount is how many tags are suggested when unspecified.
	DefaultTagCount = 3
)

// Ranker is the part of search.Ranker the service needs.
type Ranker interface {
	Rank(ctx context.Context, query string, candidates []string, topK int) ([]search.Result, error)
}

// FolderRequest asks for the best destination folders for a note.
type FolderRequest struct {
	Content  string   `json:"content"`
	FileName string   `json:"file_name,omitempty"`
	Folders  []string `json:"folders"`

	// Count is the number of suggestions (0 = DefaultFolderCount).
	Count int `json:"count,omitempty"`
}

// TagRequest asks for existing vault tags that fit a note.
type TagRequest struct {
	Content  string   `json:"content"`
	FileName string   `json:"file_name,omitempty"`
	Tags     []string `json:"tags"`

	// Count is the number of suggestions (0 = DefaultTagCount).
	Count int `json:"count,omitempty"`
}

// Response holds ranked suggestions, best first.
type Response struct {
	Suggestions []search.Result `json:"suggestions"`
}

// Names returns the suggested names in rank order.
func (r *Response) Names() []string {
	out := make([]string, len(r.Suggestions))
	for i, s := range r.Suggestions {
		out[i] = s.Name
	}
	return out
}

// Service suggests folders and tags.
type Service struct {
	ranker      Ranker
	folderCount int
	tagCount    int
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultCounts overrides the default folder and tag counts.
// Values <= 0 keep the built-in defaults.
func WithDefaultCounts(folders, tags int) Option {
	return func(s *Service) {
		if folders > 0 {
			s.folderCount = folders
		}
		if tags > 0 {
			s.tagCount = tags
		}
	}
}

// NewService creates a Service backed by ranker.
func NewService(ranker Ranker, opts ...Option) (*Service, error) {
	if ranker == nil {
		return nil, fmt.Errorf("%w: ranker", search.ErrNilDependency)
	}
	s := &Service{
		ranker:      ranker,
		folderCount: DefaultFolderCount,
		tagCount:    DefaultTagCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SuggestFolders ranks req.Folders against the note.
func (s *Service) SuggestFolders(ctx context.Context, req FolderRequest) (*Response, error) {
	count, err := resolveCount(req.Count, s.folderCount)
	if err != nil {
		return nil, err
	}
	query, err := buildQuery(req.FileName, req.Content)
	if err != nil {
		return nil, err
	}

	results, err := s.ranker.Rank(ctx, query, CleanCandidates(req.Folders), count)
	if err != nil {
		return nil, err
	}
	return &Response{Suggestions: results}, nil
}

// SuggestTags ranks vault tags against the note. Tags are compared without
// their leading '#', in lowercase and without whitespace. Tags the note
// already carries as #tag are not suggested again.
func (s *Service) SuggestTags(ctx context.Context, req TagRequest) (*Response, error) {
	count, err := resolveCount(req.Count, s.tagCount)
	if err != nil {
		return nil, err
	}
	query, err := buildQuery(req.FileName, req.Content)
	if err != nil {
		return nil, err
	}

	content := strings.ToLower(req.Content)
	var candidates []string
	for _, raw := range req.Tags {
		tag := NormalizeTag(raw)
		if tag == "" || tag == "none" {
			continue
		}
		if strings.Contains(content, "#"+tag) {
			continue
		}
		candidates = append(candidates, tag)
	}

	results, err := s.ranker.Rank(ctx, query, CleanCandidates(candidates), count)
	if err != nil {
		return nil, err
	}
	return &Response{Suggestions: results}, nil
}

// NormalizeTag strips leading '#', removes whitespace and lowercases.
func NormalizeTag(tag string) string {
	tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, tag))
}

// CleanCandidates trims names, drops blanks and removes repeats while
// keeping the first occurrence.
func CleanCandidates(names []string) []string {
	trimmed := make([]string, 0, len(names))
	for _, n := range names {
		trimmed = append(trimmed, strings.TrimSpace(n))
	}
	return search.SanitizeCandidates(trimmed)
}

func buildQuery(fileName, content string) (string, error) {
	fileName = strings.TrimSpace(fileName)
	if strings.TrimSpace(content) == "" && fileName == "" {
		return "", errors.New(errors.ErrCodeQueryEmpty, "content or file name is required", nil)
	}
	if fileName == "" {
		return content, nil
	}
	return fileName + "\n" + content, nil
}

func resolveCount(requested, def int) (int, error) {
	switch {
	case requested < 0:
		return 0, errors.New(errors.ErrCodeInvalidTopK,
			fmt.Sprintf("count must be positive, got %d", requested), nil)
	case requested == 0:
		return def, nil
	}
	return requested, nil
}
