package proxy

import "regexp"

var (
	// userinfoPattern matches the password part of URL userinfo.
	userinfoPattern = regexp.MustCompile(`(://[^:/@\s"]+:)[^@/\s"]+@`)
	// secretParamPattern matches credential-like query parameter values.
	secretParamPattern = regexp.MustCompile(`(?i)((?:api_?key|access_token|token|password)=)[^&\s"]+`)
)

// SanitizeError redacts credentials from error messages that may embed
// target URLs.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := userinfoPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]@")
	return secretParamPattern.ReplaceAllString(msg, "${1}[REDACTED]")
}
