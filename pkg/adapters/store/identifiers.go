package store

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding is an identifier that libinjection recognizes as a SQL
// injection pattern. Column names derived from data (category indicators)
// are always quoted, so findings are reported rather than rejected.
type InjectionFinding struct {
	Identifier  string
	Fingerprint string
}

// ScreenIdentifiers checks table and column names with libinjection.
func ScreenIdentifiers(names ...string) []InjectionFinding {
	var findings []InjectionFinding
	for _, name := range names {
		if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
			findings = append(findings, InjectionFinding{
				Identifier:  name,
				Fingerprint: string(fingerprint),
			})
		}
	}
	return findings
}
