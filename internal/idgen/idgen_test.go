package idgen

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

func TestGenerateWithPrefix_Shape(t *testing.T) {
	for _, prefix := range []string{DefaultPrefix, "vec-", ""} {
		pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `[a-zA-Z0-9]{10}$`)
		for range 50 {
			id, err := GenerateWithPrefix(prefix)
			if err != nil {
				t.Fatalf("GenerateWithPrefix(%q): %v", prefix, err)
			}
			if !pattern.MatchString(id) {
				t.Fatalf("GenerateWithPrefix(%q) = %q", prefix, id)
			}
		}
	}
	id, err := Generate()
	if err != nil || !strings.HasPrefix(id, DefaultPrefix) {
		t.Errorf("Generate() = %q, %v", id, err)
	}
}

func TestGenerate_NoCollisionsAcrossManyStructs(t *testing.T) {
	const n = 10_000
	seen := make(map[string]bool, n)
	for i := range n {
		id, err := Generate()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q after %d", id, i)
		}
		seen[id] = true
	}
}

func TestGenerator_Next(t *testing.T) {
	for _, tc := range []struct {
		name       string
		prefix     string
		taken      int // InUse reports the first n candidates as taken
		wantPrefix string
		wantErr    error
	}{
		{name: "Free", prefix: "vec-", wantPrefix: "vec-"},
		{name: "DefaultPrefix", wantPrefix: DefaultPrefix},
		{name: "SkipsTaken", prefix: "p-", taken: 2, wantPrefix: "p-"},
		{name: "Exhausted", taken: maxAttempts, wantErr: ErrExhausted},
	} {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			g := Generator{Prefix: tc.prefix, InUse: func(string) bool {
				calls++
				return calls <= tc.taken
			}}
			id, err := g.Next()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Next() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(id, tc.wantPrefix) {
				t.Errorf("Next() = %q, want prefix %q", id, tc.wantPrefix)
			}
			if calls != tc.taken+1 {
				t.Errorf("InUse called %d times, want %d", calls, tc.taken+1)
			}
		})
	}
}
