package v1

import (
	"errors"
	urllib "net/url"
)

var ErrInvalidURL = errors.New("invalid url")

// URL is the identity of a page. Two URLs refer to the same logical entity
// iff all four fields match exactly - no normalization happens beyond what
// ParseURL performs. The 4-tuple is the join key for historical diffing and
// a required column on every check result.
type URL struct {
	Protocol string `json:"protocol" bson:"protocol" db:"protocol"`
	Domain   string `json:"domain" bson:"domain" db:"domain"`
	Path     string `json:"path" bson:"path" db:"path"`
	Query    string `json:"query" bson:"query" db:"query"`
}

func ParseURL(rawurl string) (URL, error) {
	parsed, err := urllib.Parse(rawurl)
	if err != nil {
		return URL{}, err
	}

	if parsed.Scheme == "" || parsed.Hostname() == "" {
		return URL{}, ErrInvalidURL
	}

	return URL{
		Protocol: parsed.Scheme,
		Domain:   parsed.Hostname(),
		Path:     parsed.Path,
		Query:    parsed.RawQuery,
	}, nil
}

func (u URL) String() string {
	s := u.Protocol + "://" + u.Domain + u.Path

	if u.Query != "" {
		s += "?" + u.Query
	}

	return s
}

func (u URL) IsZero() bool {
	return u == URL{}
}
