package core

import (
	"context"
	"testing"
)

// TestCurrentThreadName verifies extracting the thread name from context
// Given: A plain context, a nil context and a context carrying a thread name
// When: CurrentThreadName is called
// Then: It returns "" for the first two and the stored name for the last
func TestCurrentThreadName(t *testing.T) {
	// Arrange, Act and Assert - plain context
	if got := CurrentThreadName(context.Background()); got != "" {
		t.Fatalf("CurrentThreadName(background) = %q, want empty", got)
	}
	if got := CurrentThreadName(nil); got != "" {
		t.Fatalf("CurrentThreadName(nil) = %q, want empty", got)
	}

	// Arrange
	ctx := WithThreadName(context.Background(), "up#1")

	// Act and Assert
	if got := CurrentThreadName(ctx); got != "up#1" {
		t.Fatalf("CurrentThreadName(ctx) = %q, want %q", got, "up#1")
	}
}

// TestTaskPriority_Order verifies the named levels are the first two queue indexes
func TestTaskPriority_Order(t *testing.T) {
	if TaskPriorityMax != 0 || TaskPriorityMaxMinusOne != TaskPriorityMax+1 {
		t.Errorf("TaskPriorityMax = %d, TaskPriorityMaxMinusOne = %d", TaskPriorityMax, TaskPriorityMaxMinusOne)
	}
}
