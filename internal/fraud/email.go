package fraud

import "strings"

// EmailAnalyzer flags throwaway and auto-generated looking addresses.
type EmailAnalyzer struct {
	disposable map[string]struct{}
}

// NewEmailAnalyzer builds an analyzer over the given disposable domains.
// Domains are matched case-insensitively against the part after "@".
func NewEmailAnalyzer(domains []string) *EmailAnalyzer {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return &EmailAnalyzer{disposable: set}
}

// IsDisposable reports whether the address uses a known throwaway domain.
func (a *EmailAnalyzer) IsDisposable(email string) bool {
	_, domain, ok := splitEmail(email)
	if !ok {
		return false
	}
	_, found := a.disposable[domain]
	return found
}

// LooksGenerated reports whether the local part is mostly digits, a
// pattern common in scripted signups (e.g. "x84726153@example.com").
// More than half the local part being digits trips the heuristic.
func (a *EmailAnalyzer) LooksGenerated(email string) bool {
	local, _, ok := splitEmail(email)
	if !ok || local == "" {
		return false
	}
	digits := 0
	for _, r := range local {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits*2 > len(local)
}

func splitEmail(email string) (local, domain string, ok bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, ok = strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return "", "", false
	}
	return local, domain, true
}
