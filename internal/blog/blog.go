// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

// Package blog serves posts stored as plain text files in a directory.
//
// A post file holds, in its non-empty lines: the post id, the title, an
// optional "Date:" line, and the body. Ids sort newest-first; ULIDs are the
// conventional choice since their lexicographic order is their time order.
package blog

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

var dateLine = regexp.MustCompile(`^[dD]ate:`)

// Post is one published blog entry.
type Post struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date,omitempty"`
	Body  string `json:"body"`
}

// Library reads posts from a directory on every call, so publishing a post
// is just dropping a file in place.
type Library struct {
	dir    string
	logger *slog.Logger
}

// NewLibrary creates a Library over dir. logger may be nil.
func NewLibrary(dir string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{dir: dir, logger: logger}
}

// List returns up to count posts, newest id first. count <= 0 means all.
// Files that do not parse as posts are logged and skipped.
func (l *Library) List(count int) ([]Post, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, oops.Code("BLOG_READ_FAILED").With("dir", l.dir).Wrap(err)
	}

	posts := make([]Post, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("failed to read blog post", "path", path, "error", err)
			continue
		}

		post, ok := parsePost(string(data))
		if !ok {
			l.logger.Warn("malformed blog post skipped", "path", path)
			continue
		}
		posts = append(posts, post)
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ID > posts[j].ID
	})

	if count > 0 && len(posts) > count {
		posts = posts[:count]
	}
	return posts, nil
}

// parsePost splits a post file into its parts. The layout is positional over
// non-empty lines: id, title, optional date line, body.
func parsePost(data string) (Post, bool) {
	var lines []string
	for _, line := range strings.Split(data, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 3 {
		return Post{}, false
	}

	post := Post{
		ID:    strings.TrimSpace(lines[0]),
		Title: strings.TrimSpace(lines[1]),
	}

	body := lines[2:]
	if loc := dateLine.FindStringIndex(strings.TrimSpace(body[0])); loc != nil {
		post.Date = strings.TrimSpace(strings.TrimSpace(body[0])[loc[1]:])
		body = body[1:]
	}
	if len(body) == 0 {
		return Post{}, false
	}
	post.Body = strings.Join(body, "\n")

	if post.Date == "" {
		if id, err := ulid.ParseStrict(post.ID); err == nil {
			post.Date = ulid.Time(id.Time()).UTC().Format("2006-01-02")
		}
	}
	return post, true
}
