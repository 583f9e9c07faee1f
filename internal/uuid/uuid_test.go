package uuid

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	id1 := New()
	id2 := New()

	if len(id1) != 36 {
		t.Errorf("expected canonical UUID length 36, got %d", len(id1))
	}

	if strings.Count(id1, "-") != 4 {
		t.Errorf("expected 4 dashes in %q", id1)
	}

	if id1 == id2 {
		t.Error("UUIDs should be unique")
	}
}
