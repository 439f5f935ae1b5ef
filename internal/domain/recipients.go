package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// NormalizeRecipients trims, lower-cases and validates each address,
// dropping empties and duplicates while keeping order.
func NormalizeRecipients(raw []string) ([]string, error) {
	var (
		out  []string
		seen = map[string]bool{}
	)
	for _, r := range raw {
		for _, p := range SplitRecipients(r) {
			addr, err := mail.ParseAddress(p)
			if err != nil {
				return nil, fmt.Errorf("invalid recipient %q: %w", p, err)
			}
			a := strings.ToLower(addr.Address)
			if seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out, nil
}
