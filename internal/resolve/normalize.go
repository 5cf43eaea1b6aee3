package resolve

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
)

const defaultGithubHost = "github.com"

var (
	validSlugRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,127}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9._-]+`)
	leadingDash  = regexp.MustCompile(`^[-.]+`)
	trailingDash = regexp.MustCompile(`[-.]+$`)
	segmentRe    = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	hostRe       = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*(:[0-9]+)?$`)
)

// GithubRemote is the github_remote selector. Normalized, when given, may be
// "owner/repo", "host/owner/repo", an https URL or an scp-style ssh remote.
type GithubRemote struct {
	Owner      string `json:"owner,omitempty"`
	Repo       string `json:"repo,omitempty"`
	Host       string `json:"host,omitempty"`
	Normalized string `json:"normalized,omitempty"`
}

// NormalizedRemote is a parsed github remote.
type NormalizedRemote struct {
	Host  string // lowercase, empty when not given
	Owner string
	Repo  string
}

// OwnerRepo returns "owner/repo".
func (n NormalizedRemote) OwnerRepo() string { return n.Owner + "/" + n.Repo }

// Candidates returns the external IDs to look up: the host-qualified form first
// when a host is present, then the unqualified form.
func (n NormalizedRemote) Candidates() []string {
	if n.Host == "" {
		return []string{n.OwnerRepo()}
	}
	return []string{n.Host + "/" + n.OwnerRepo(), n.OwnerRepo()}
}

// CreateID is the external ID used when auto-creating: host-qualified only for
// hosts other than github.com.
func (n NormalizedRemote) CreateID() string {
	if n.Host == "" || n.Host == defaultGithubHost {
		return n.OwnerRepo()
	}
	return n.Host + "/" + n.OwnerRepo()
}

// NormalizeGithubRemote validates and canonicalizes a github_remote selector.
func NormalizeGithubRemote(g GithubRemote) (NormalizedRemote, error) {
	var n NormalizedRemote
	if raw := strings.TrimSpace(g.Normalized); raw != "" {
		parsed, err := parseRemote(raw)
		if err != nil {
			return n, err
		}
		n = parsed
	} else {
		n = NormalizedRemote{
			Host:  strings.TrimSpace(g.Host),
			Owner: strings.TrimSpace(g.Owner),
			Repo:  strings.TrimSpace(g.Repo),
		}
	}
	if n.Host == "" && g.Host != "" {
		n.Host = strings.TrimSpace(g.Host)
	}

	n.Host = strings.TrimSuffix(strings.ToLower(n.Host), "/")
	n.Owner = strings.Trim(strings.ToLower(n.Owner), "/")
	n.Repo = strings.TrimSuffix(strings.Trim(strings.ToLower(n.Repo), "/"), ".git")

	if n.Owner == "" || n.Repo == "" {
		return n, apperr.Invalid("github_remote", "owner and repo are required")
	}
	if !segmentRe.MatchString(n.Owner) || !segmentRe.MatchString(n.Repo) {
		return n, apperr.Invalid("github_remote", "invalid owner/repo %q", n.OwnerRepo())
	}
	if n.Host != "" && !hostRe.MatchString(n.Host) {
		return n, apperr.Invalid("github_remote", "invalid host %q", n.Host)
	}
	return n, nil
}

func parseRemote(raw string) (NormalizedRemote, error) {
	s := strings.ToLower(raw)

	// scp-style: git@github.com:owner/repo.git
	if at := strings.Index(s, "@"); at >= 0 && !strings.Contains(s, "://") {
		rest := s[at+1:]
		host, path, ok := strings.Cut(rest, ":")
		if !ok {
			return NormalizedRemote{}, apperr.Invalid("github_remote", "unrecognized remote %q", raw)
		}
		return splitPath(host, path, raw)
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return NormalizedRemote{}, apperr.Invalid("github_remote", "unrecognized remote %q", raw)
		}
		return splitPath(u.Host, u.Path, raw)
	}

	parts := strings.Split(strings.Trim(s, "/"), "/")
	switch len(parts) {
	case 2:
		return NormalizedRemote{Owner: parts[0], Repo: parts[1]}, nil
	case 3:
		return NormalizedRemote{Host: parts[0], Owner: parts[1], Repo: parts[2]}, nil
	}
	return NormalizedRemote{}, apperr.Invalid("github_remote", "unrecognized remote %q", raw)
}

func splitPath(host, path, raw string) (NormalizedRemote, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		return NormalizedRemote{}, apperr.Invalid("github_remote", "expected owner/repo in %q", raw)
	}
	return NormalizedRemote{Host: host, Owner: parts[0], Repo: parts[1]}, nil
}

// NormalizeSlug converts a repo-root directory name into a mapping slug:
// lowercase, [a-z0-9._-] only, invalid runs collapsed to "-", max 128 chars.
func NormalizeSlug(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", apperr.Invalid("repo_root_slug", "slug is empty")
	}

	lower := strings.ToLower(trimmed)
	if validSlugRe.MatchString(lower) {
		return lower, nil
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")
	if len(result) > 128 {
		result = result[:128]
	}
	if result == "" {
		return "", apperr.Invalid("repo_root_slug", "slug %q has no usable characters", name)
	}
	return result, nil
}
