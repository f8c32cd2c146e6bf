package logging

import "testing"

func TestNew(t *testing.T) {
	for _, prod := range []bool{false, true} {
		log, err := New(prod)
		if err != nil {
			t.Fatalf("New(%v): %v", prod, err)
		}
		log.Info("logger ready")
		_ = log.Sync()
	}
}
