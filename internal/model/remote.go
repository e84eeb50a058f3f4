package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// RemoteFileRef addresses one file on a remote branch. ContentHash is the
// opaque version token returned by the remote; empty means the file is
// expected not to exist yet.
type RemoteFileRef struct {
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	Branch      string `json:"branch"`
	Path        string `json:"path"`
	ContentHash string `json:"content_hash,omitempty"`
}

func (r RemoteFileRef) WithHash(hash string) RemoteFileRef {
	r.ContentHash = hash
	return r
}

func (r RemoteFileRef) String() string {
	return fmt.Sprintf("%s/%s@%s:%s", r.Owner, r.Repo, r.Branch, r.Path)
}

var (
	repoShort = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)$`)
	repoHTTPS = regexp.MustCompile(`^https?://[^/]+/([\w.-]+)/([\w.-]+?)(?:\.git)?/?$`)
	repoSSH   = regexp.MustCompile(`^git@[^:]+:([\w.-]+)/([\w.-]+?)(?:\.git)?$`)
)

// ParseRepo accepts owner/repo, an https clone URL or an ssh clone URL.
func ParseRepo(s string) (owner, repo string, err error) {
	s = strings.TrimSpace(s)
	for _, re := range []*regexp.Regexp{repoShort, repoHTTPS, repoSSH} {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1], strings.TrimSuffix(m[2], ".git"), nil
		}
	}
	return "", "", errors.Errorf("unrecognised repository %q, expected owner/repo", s)
}
