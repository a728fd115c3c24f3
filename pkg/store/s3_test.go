package store

import "testing"

func TestKey(t *testing.T) {
	s := New(Options{Bucket: "bundles", Prefix: "published/", Region: "us-east-1"})

	tests := []struct {
		id   string
		want string
	}{
		{"~who/wiki/42/wiki", "published/who/wiki/42/wiki/bundle.yaml"},
		{"who/wiki", "published/who/wiki/bundle.yaml"},
	}
	for _, test := range tests {
		key, err := s.key(test.id)
		if err != nil {
			t.Errorf("key(%q) error: %v", test.id, err)
			continue
		}
		if key != test.want {
			t.Errorf("key(%q) = %q, want %q", test.id, key, test.want)
		}
	}
}

func TestKeyRejectsInvalidIDs(t *testing.T) {
	s := New(Options{Bucket: "bundles", Region: "us-east-1"})

	for _, id := range []string{"", "~", "noslash", "~who/../secrets"} {
		if _, err := s.key(id); err == nil {
			t.Errorf("key(%q) should fail", id)
		}
	}
}
