// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package blog_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcaswell/driftwood/internal/blog"
)

func writePost(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestList_ParsesAndOrders(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "first.txt", "001\nFirst Post\nDate: 2026-01-02\nhello\nworld\n")
	writePost(t, dir, "second.txt", "002\n  Second Post  \nno date here\nmore body\n")
	writePost(t, dir, "third.txt", "003\nThird Post\ndate: 2026-03-01\nbody\n")

	lib := blog.NewLibrary(dir, nil)
	posts, err := lib.List(0)
	require.NoError(t, err)
	require.Len(t, posts, 3)

	assert.Equal(t, "003", posts[0].ID, "newest id first")
	assert.Equal(t, "002", posts[1].ID)
	assert.Equal(t, "001", posts[2].ID)

	assert.Equal(t, "First Post", posts[2].Title)
	assert.Equal(t, "2026-01-02", posts[2].Date)
	assert.Equal(t, "hello\nworld", posts[2].Body)

	assert.Equal(t, "Second Post", posts[1].Title, "title is trimmed")
	assert.Empty(t, posts[1].Date)
	assert.Equal(t, "no date here\nmore body", posts[1].Body, "non-date third line belongs to the body")

	assert.Equal(t, "2026-03-01", posts[0].Date, "lowercase date prefix accepted")
}

func TestList_CountBound(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "a.txt", "001\nA\nbody\n")
	writePost(t, dir, "b.txt", "002\nB\nbody\n")
	writePost(t, dir, "c.txt", "003\nC\nbody\n")

	posts, err := blog.NewLibrary(dir, nil).List(2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "003", posts[0].ID, "bound keeps the newest posts")
	assert.Equal(t, "002", posts[1].ID)
}

func TestList_SkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "good.txt", "001\nGood\nbody\n")
	writePost(t, dir, "empty.txt", "")
	writePost(t, dir, "no-title.txt", "002\n")
	writePost(t, dir, "date-no-body.txt", "003\nTitle\nDate: 2026-01-01\n")

	posts, err := blog.NewLibrary(dir, nil).List(0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Good", posts[0].Title)
}

func TestList_ULIDDateFallback(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 5, 17, 12, 0, 0, 0, time.UTC)
	id := ulid.MustNew(ulid.Timestamp(ts), nil)
	writePost(t, dir, "u.txt", id.String()+"\nUlid Post\nbody\n")

	posts, err := blog.NewLibrary(dir, nil).List(0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "2026-05-17", posts[0].Date)
}

func TestList_MissingDir(t *testing.T) {
	_, err := blog.NewLibrary(filepath.Join(t.TempDir(), "nope"), nil).List(0)
	assert.Error(t, err)
}
