// Package imagestore keeps images attached to tasks and hands back the URL
// that is recorded on the task.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Driver identifies a concrete image storage backend.
type Driver string

// Supported drivers.
const (
	DriverNone   Driver = "none"
	DriverMemory Driver = "memory"
	DriverS3     Driver = "s3"
)

// Errors.
var (
	ErrInvalidKey    = errors.New("image key must not be empty")
	ErrUnknownDriver = errors.New("image store must be one of: none, memory, s3")
)

// Store uploads and removes task images.
type Store interface {
	// Put stores the image under key and returns the URL to record on the task.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)

	// Delete removes the image under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Driver reports the backend in use.
	Driver() Driver
}

// ParseDriver validates an image store driver name.
func ParseDriver(s string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(s))); d {
	case DriverNone, DriverMemory, DriverS3:
		return d, nil
	case "":
		return DriverNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, s)
	}
}

// KeyForTask returns the object key used for a task's image.
func KeyForTask(taskID string) string {
	return "tasks/" + taskID + "/image"
}
