package admission

import "testing"

func TestIsSubscriberClass(t *testing.T) {
	cases := []struct {
		name  string
		class string
		want  bool
	}{
		{"text token 2", "2", true},
		{"zero-padded text token", "00000002", true},
		{"packed 4-byte binary 2", string([]byte{0, 0, 0, 2}), true},
		{"packed 1-byte binary 2", string([]byte{2}), true},
		{"other text class", "1", false},
		{"empty class", "", false},
		{"unrelated binary value", string([]byte{0, 0, 0, 3}), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isSubscriberClass(tc.class); got != tc.want {
				t.Fatalf("isSubscriberClass(%q) = %v, want %v", tc.class, got, tc.want)
			}
		})
	}
}
