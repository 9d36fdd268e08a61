package mailbox

import (
	"github.com/emersion/go-sasl"
)

// Xoauth2 is the SASL mechanism name used by Outlook and Gmail
const Xoauth2 = "XOAUTH2"

type xoauth2Client struct {
	username string
	token    string
}

// NewXoauth2Client returns a SASL client that authenticates username with an
// OAuth2 bearer token.
func NewXoauth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (mech string, ir []byte, err error) {
	ir = []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return Xoauth2, ir, nil
}

// Next answers the server's error challenge with an empty response so the
// server can finish the exchange with a tagged NO.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}
