package logger

import "strings"

// RedactEmail masks the local part of an address and keeps the domain,
// which is what block decisions are keyed on. Local parts of two bytes or
// fewer are masked entirely.
func RedactEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return "***@***"
	}
	local, dom := email[:at], email[at+1:]
	if len(local) > 2 {
		return local[:2] + "***@" + dom
	}
	return "***@" + dom
}
