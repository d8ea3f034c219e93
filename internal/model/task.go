// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation errors for Task.
var (
	ErrEmptyTask        = errors.New("task must have a title or a description")
	ErrTitleTooLong     = errors.New("title cannot exceed 255 characters")
	ErrDescriptionLimit = errors.New("description cannot exceed 1000 characters")
)

// Validation constants.
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 1000
)

// Task is a single to-do entry. Tasks are treated as values: changing a
// field produces a new Task that is saved back under the same ID.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	ImageURL    string `json:"image_url,omitempty"`
}

// NewTask creates an active task with a freshly generated ID.
func NewTask(title, description string) Task {
	return Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
	}
}

// IsEmpty reports whether both title and description are blank.
func (t Task) IsEmpty() bool {
	return strings.TrimSpace(t.Title) == "" && strings.TrimSpace(t.Description) == ""
}

// IsActive reports whether the task is not completed.
func (t Task) IsActive() bool {
	return !t.Completed
}

// TitleForList returns the title, or the description for untitled tasks.
func (t Task) TitleForList() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Description
}

// WithCompleted returns a copy of the task with the completion flag set.
func (t Task) WithCompleted(completed bool) Task {
	t.Completed = completed
	return t
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.IsEmpty() {
		return ErrEmptyTask
	}

	if utf8.RuneCountInString(t.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}

	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return ErrDescriptionLimit
	}

	return nil
}
