package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// Account identifies a server endpoint and a user on it. It is only used as
// a key and never changes once constructed.
type Account struct {
	Server string
	Email  string
	Token  string
}

func NewAccount(server, email, token string) Account {
	return Account{Server: strings.TrimRight(server, "/"), Email: email, Token: token}
}

// Signature is the stable key used for this account in persisted records.
// Servers on different ports of one host are different accounts.
func (a Account) Signature() string {
	return fmt.Sprintf("%s@%s", a.Email, a.hostPort())
}

func (a Account) hostPort() string {
	server := a.Server
	if u, err := url.Parse(server); err == nil && u.Host != "" {
		server = u.Host
	}
	return strings.Trim(server, "/")
}

// Host returns the server host with scheme, port and slashes removed.
func (a Account) Host() string {
	server := a.hostPort()
	if i := strings.LastIndex(server, ":"); i != -1 && !strings.HasSuffix(server, "]") {
		server = server[:i]
	}
	return server
}

var unsafeDirChars = regexp.MustCompile(`[^\w\d.@() ]`)

// Dir is the name of the directory holding this account's repositories,
// e.g. "foo@gmail.com (cloud.example.com)".
func (a Account) Dir() string {
	return unsafeDirChars.ReplaceAllString(fmt.Sprintf("%s (%s)", a.Email, a.Host()), "_")
}

// SnapshotKey is a filesystem-safe digest of server and email, used to name
// the on-disk repository list snapshot.
func (a Account) SnapshotKey() (string, error) {
	digest, err := multihash.Sum([]byte(a.Server+a.Email), multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hashing account: %w", err)
	}
	return multibase.Encode(multibase.Base32, digest)
}

func (a Account) String() string {
	return a.Signature()
}
