package ws

import "testing"

func TestParseSubscriptionMessage(t *testing.T) {
	cases := []struct {
		name       string
		in         string
		wantMint   string
		wantAction string
		wantOK     bool
	}{
		{"valid subscribe", "So11111111111111111111111111111111111111112,subscribe", "So11111111111111111111111111111111111111112", "subscribe", true},
		{"valid unsubscribe mixed case", "mintA, UnSubscribe", "mintA", "unsubscribe", true},
		{"missing comma", "mintA", "", "", false},
		{"empty mint", ",subscribe", "", "", false},
		{"empty action", "mintA,", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mint, action, ok := parseSubscriptionMessage([]byte(tc.in))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if mint != tc.wantMint || action != tc.wantAction {
				t.Fatalf("got (%q, %q), want (%q, %q)", mint, action, tc.wantMint, tc.wantAction)
			}
		})
	}
}
