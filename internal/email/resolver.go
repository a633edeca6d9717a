package email

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Intake mailboxes occasionally live with a hosted provider rather than on
// the forum's own infrastructure.
var knownIMAPServers = map[string]string{
	"gmail.com":      "imap.gmail.com:993",
	"googlemail.com": "imap.gmail.com:993",
	"outlook.com":    "outlook.office365.com:993",
	"hotmail.com":    "outlook.office365.com:993",
	"yandex.ru":      "imap.yandex.ru:993",
	"yandex.com":     "imap.yandex.com:993",
	"mail.ru":        "imap.mail.ru:993",
	"fastmail.com":   "imap.fastmail.com:993",
	"zoho.com":       "imap.zoho.com:993",
}

// ResolveIMAPServer determines the IMAP server for the intake address when
// none is configured explicitly.
func ResolveIMAPServer(address string) (string, error) {
	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid email format")
	}

	domain := strings.ToLower(parts[1])

	if server, ok := knownIMAPServers[domain]; ok {
		return server, nil
	}

	patterns := []string{
		"imap." + domain,
		"mail." + domain,
		domain,
	}
	for _, host := range patterns {
		if checkIMAPServer(host, 993) {
			return host + ":993", nil
		}
	}

	if server, err := resolveViaMX(domain); err == nil && server != "" {
		return server, nil
	}

	return "imap." + domain + ":993", nil
}

// checkIMAPServer checks if an IMAP server is reachable
func checkIMAPServer(host string, port int) bool {
	address := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", address, 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// resolveViaMX derives a probable IMAP host from the domain's MX records.
func resolveViaMX(domain string) (string, error) {
	mxRecords, err := net.LookupMX(domain)
	if err != nil || len(mxRecords) == 0 {
		return "", fmt.Errorf("no MX records found")
	}

	mxHost := strings.TrimSuffix(mxRecords[0].Host, ".")

	// e.g. mx.example.com -> imap.example.com
	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) == 2 {
		for _, prefix := range []string{"imap.", "mail."} {
			host := prefix + parts[1]
			if checkIMAPServer(host, 993) {
				return host + ":993", nil
			}
		}
	}

	return "", fmt.Errorf("could not determine IMAP server")
}
