// Package coursecache persists resolved grades across restarts so
// repeated fetches skip courses that already have a final grade.
package coursecache

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"gradewatch-backend/lib/scrapers/powercampus"
)

// Cache is a durable write-once mapping from course code to resolved
// course. The file is loaded once at Open and fully rewritten on
// Flush; the cache stays small and writes only happen on new grades.
//
// The mutex serializes mutation between concurrent fetches, so two
// overlapping scrapes merge instead of the last flush silently
// dropping the other's rows.
type Cache struct {
	path string

	mu      sync.Mutex
	courses map[string]powercampus.Course
}

// Open loads the cache file. An absent or corrupt file means "start
// empty", never a fatal error.
func Open(path string) *Cache {
	c := &Cache{
		path:    path,
		courses: map[string]powercampus.Course{},
	}

	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c
	}
	if err != nil {
		slog.Warn("failed to read grade cache, starting empty", "path", path, "err", err)
		return c
	}
	err = json.Unmarshal(contents, &c.courses)
	if err != nil {
		slog.Warn("corrupt grade cache, starting empty", "path", path, "err", err)
		c.courses = map[string]powercampus.Course{}
	}
	return c
}

func (c *Cache) Get(code string) (powercampus.Course, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	course, ok := c.courses[code]
	return course, ok
}

// Put stores a resolved course. Entries are write-once: an existing
// entry is never overwritten and unresolved courses are never stored.
// Reports whether the course was actually written.
func (c *Cache) Put(course powercampus.Course) bool {
	if course.Grade == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.courses[course.Code]; exists {
		return false
	}
	c.courses[course.Code] = course
	return true
}

// Flush rewrites the whole cache file.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	contents, err := json.MarshalIndent(c.courses, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, contents, 0644)
}

// Len reports the number of cached courses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.courses)
}
