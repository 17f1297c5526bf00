// Package domain holds the in-memory representation of the messaging-service
// entities the gateway bridges onto the line protocol: organizations,
// channels (regular and direct), pending channels, and members, together
// with the bit-exact naming and escaping rules used to render them.
package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Escape replaces the two characters the line protocol cannot carry in a
// room name or nickname: ',' becomes '_' and space becomes '-'. It is
// idempotent on inputs that already lack both characters.
func Escape(s string) string {
	s = strings.ReplaceAll(s, ",", "_")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}

// MemberNickname renders a backend username and org name as a line-protocol
// nickname: "<escape(username)>(<escape(orgName)>)".
func MemberNickname(username, orgName string) string {
	return fmt.Sprintf("%s(%s)", Escape(username), Escape(orgName))
}

var nicknameRegexp = regexp.MustCompile(`^(.+)\((.+)\)$`)

// ParseNickname recovers (user, org) from a "<user>(<org>)" token. It is the
// inverse of MemberNickname for any user/org pair whose escaped forms
// contain no parentheses. ok is false if the token doesn't match the shape.
func ParseNickname(token string) (user, org string, ok bool) {
	m := nicknameRegexp.FindStringSubmatch(token)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
