package types

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// StoreKind selects the backing similarity store implementation
type StoreKind string

const (
	StoreEmbedded  StoreKind = "embedded"  // SQLite file on local disk
	StoreNetworked StoreKind = "networked" // PostgreSQL server
)

// MemoryPath opens a throwaway embedded store
const MemoryPath = ":memory:"

// sensitiveParams never appear in a redacted descriptor
var sensitiveParams = map[string]bool{
	"password":    true,
	"sslpassword": true,
	"passfile":    true,
	"sslkey":      true,
}

// DefaultPostgresPort is used when a networked descriptor omits the port
const DefaultPostgresPort = 5432

// StoreDescriptor says where a similarity store lives
type StoreDescriptor struct {
	Kind StoreKind

	// Embedded
	Path string

	// Networked
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Params   map[string]string
}

// ParseDescriptor accepts a file path, a file: URL, or a postgres:// URL.
//
//	/data/bsim/libc.db               embedded
//	file:///data/bsim/libc.db        embedded
//	postgres://user:pw@host:5432/db  networked
func ParseDescriptor(location string) (StoreDescriptor, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return StoreDescriptor{}, Wrap(ErrConnection, fmt.Errorf("%w: empty", ErrMalformedLocation))
	}

	if location == MemoryPath {
		return StoreDescriptor{Kind: StoreEmbedded, Path: MemoryPath}, nil
	}

	if !strings.Contains(location, "://") {
		return StoreDescriptor{Kind: StoreEmbedded, Path: location}, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return StoreDescriptor{}, Wrap(ErrConnection, fmt.Errorf("%w: %v", ErrMalformedLocation, err))
	}

	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return StoreDescriptor{}, Wrap(ErrConnection, fmt.Errorf("%w: file URL without path", ErrMalformedLocation))
		}
		return StoreDescriptor{Kind: StoreEmbedded, Path: u.Path}, nil
	case "postgres", "postgresql":
		return parseNetworked(u)
	default:
		return StoreDescriptor{}, Wrap(ErrConnection, fmt.Errorf("%w: scheme %q", ErrUnsupportedStore, u.Scheme))
	}
}

func parseNetworked(u *url.URL) (StoreDescriptor, error) {
	d := StoreDescriptor{
		Kind:     StoreNetworked,
		Host:     u.Hostname(),
		Port:     DefaultPostgresPort,
		Database: strings.TrimPrefix(u.Path, "/"),
	}
	if d.Host == "" {
		return StoreDescriptor{}, Wrap(ErrConnection, fmt.Errorf("%w: missing host", ErrMalformedLocation))
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return StoreDescriptor{}, Wrap(ErrConnection, fmt.Errorf("%w: port %q", ErrMalformedLocation, p))
		}
		d.Port = port
	}
	if u.User != nil {
		d.User = u.User.Username()
		d.Password, _ = u.User.Password()
	}
	if q := u.Query(); len(q) > 0 {
		d.Params = make(map[string]string, len(q))
		for k := range q {
			if k == "password" {
				if d.Password == "" {
					d.Password = q.Get(k)
				}
				continue
			}
			d.Params[k] = q.Get(k)
		}
	}
	return d, nil
}

// Validate checks the descriptor is complete for its kind
func (d StoreDescriptor) Validate() error {
	switch d.Kind {
	case StoreEmbedded:
		if d.Path == "" {
			return Wrap(ErrConnection, fmt.Errorf("%w: missing path", ErrMalformedLocation))
		}
	case StoreNetworked:
		if d.Host == "" {
			return Wrap(ErrConnection, fmt.Errorf("%w: missing host", ErrMalformedLocation))
		}
		if d.Port <= 0 || d.Port > 65535 {
			return Wrap(ErrConnection, fmt.Errorf("%w: port %d", ErrMalformedLocation, d.Port))
		}
	default:
		return Wrap(ErrConnection, fmt.Errorf("%w: %q", ErrUnsupportedStore, d.Kind))
	}
	return nil
}

// DSN renders a networked descriptor as a PostgreSQL connection URL,
// including credentials. Never log the result.
func (d StoreDescriptor) DSN() string {
	return d.url(true)
}

// Redacted renders the descriptor for display without the password
func (d StoreDescriptor) Redacted() string {
	if d.Kind == StoreEmbedded {
		return d.Path
	}
	return d.url(false)
}

func (d StoreDescriptor) url(withPassword bool) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.User != "" {
		if withPassword && d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	q := url.Values{}
	for k, v := range d.Params {
		if !withPassword && sensitiveParams[strings.ToLower(k)] {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
