package sanitize

// Rule is a regexp-based secret detection rule.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	// Keywords, when set, must appear (case-insensitively) in the input for
	// the rule to be evaluated at all.
	Keywords []string
}

// DefaultRules returns the built-in rules applied to command output and
// error messages. They target credentials that package managers commonly
// echo back: registry tokens, URL userinfo and auth headers.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "url-credentials",
			Description: "Credentials embedded in a URL",
			Pattern:     `(?i)\b[a-z][a-z0-9+.\-]*://[^\s:/@]+:[^\s@/]+@`,
		},
		{
			ID:          "auth-header",
			Description: "Authorization header value",
			Pattern:     `(?i)authorization:\s*(?:bearer|basic|token)\s+[A-Za-z0-9_\-.=+/]{8,}`,
			Keywords:    []string{"authorization"},
		},
		{
			ID:          "npmrc-auth",
			Description: "npm registry auth token",
			Pattern:     `(?i)_auth(?:Token)?\s*=\s*[^\s'"]{8,}`,
			Keywords:    []string{"_auth"},
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}`,
		},
		{
			ID:          "github-fine-grained",
			Description: "GitHub fine-grained personal access token",
			Pattern:     `github_pat_[A-Za-z0-9_]{22,}`,
		},
		{
			ID:          "gitlab-token",
			Description: "GitLab personal access token",
			Pattern:     `glpat-[A-Za-z0-9\-]{20,}`,
		},
		{
			ID:          "npm-token",
			Description: "npm access token",
			Pattern:     `npm_[A-Za-z0-9]{36}`,
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key ID",
			Pattern:     `(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`,
		},
		{
			ID:          "slack-token",
			Description: "Slack token",
			Pattern:     `xox[baprs]-[A-Za-z0-9\-]{10,}`,
		},
		{
			ID:          "private-key",
			Description: "Private key header",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`,
		},
	}
}
