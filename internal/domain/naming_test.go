package domain

import "testing"

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"comma", "foo,bar", "foo_bar"},
		{"space", "foo bar", "foo-bar"},
		{"both", "foo, bar baz", "foo_-bar-baz"},
		{"clean", "foobar", "foobar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escape(tt.in); got != tt.want {
				t.Errorf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEscapeIdempotent(t *testing.T) {
	clean := []string{"alice", "Acme", "bob_smith", "foo-bar"}
	for _, s := range clean {
		if got := Escape(s); got != s {
			t.Errorf("Escape(%q) = %q, want unchanged", s, got)
		}
	}
}

func TestMemberNickname(t *testing.T) {
	got := MemberNickname("alice", "Acme Corp")
	want := "alice(Acme-Corp)"
	if got != want {
		t.Errorf("MemberNickname() = %q, want %q", got, want)
	}
}

func TestParseNicknameRoundTrip(t *testing.T) {
	tests := []struct {
		user, org string
	}{
		{"alice", "Acme"},
		{"bob-smith", "Example-Org"},
		{"carol_jones", "My_Team"},
	}
	for _, tt := range tests {
		nick := MemberNickname(tt.user, tt.org)
		gotUser, gotOrg, ok := ParseNickname(nick)
		if !ok {
			t.Fatalf("ParseNickname(%q) failed to match", nick)
		}
		if gotUser != Escape(tt.user) || gotOrg != Escape(tt.org) {
			t.Errorf("ParseNickname(%q) = (%q, %q), want (%q, %q)",
				nick, gotUser, gotOrg, Escape(tt.user), Escape(tt.org))
		}
	}
}

func TestParseNicknameNoMatch(t *testing.T) {
	if _, _, ok := ParseNickname("not-a-nickname"); ok {
		t.Error("expected no match for token without parentheses")
	}
}
