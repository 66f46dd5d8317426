package logging

import "testing"

func TestNew(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name        string
		development bool
	}{
		{"development", true},
		{"production", false},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			logger, err := New(tc.development)
			if err != nil {
				t.Fatalf("New(%v) error = %v", tc.development, err)
			}
			if logger == nil {
				t.Fatal("expected a logger")
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush
			logger.Info("logger ready")
		})
	}
}
