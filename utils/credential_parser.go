package utils

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"fluxmail/models"
)

const (
	minCredentialFields = 4
	minRefreshTokenLen  = 51
)

var providerAddressRe = regexp.MustCompile(`(?i)^[^@\s]+@(outlook|hotmail|live|msn)\.`)

// parseState holds the split line and the field indexes resolved so far.
// An index of -1 means the role has not been assigned.
type parseState struct {
	fields   []string
	address  int
	clientID int
	token    int
	recovery int
}

// parseRule assigns one field role. A rule returns a ParseError when the
// line cannot yield a record at all.
type parseRule func(*parseState) error

// credentialRules run in order; later rules read indexes set by earlier ones.
var credentialRules = []parseRule{
	findAddress,
	findClientID,
	findRefreshToken,
	findRecovery,
}

// ParseCredentialLine infers a credential record from a colon-delimited line
// whose column layout varies between sources. The address and the UUID
// client id anchor the line; the remaining roles are derived from their
// positions.
func ParseCredentialLine(line string) (*models.CredentialRecord, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, &ParseError{Reason: "empty line"}
	}

	fields := strings.Split(line, ":")
	if len(fields) < minCredentialFields {
		return nil, &ParseError{Reason: "expected at least 4 colon-separated fields"}
	}

	st := &parseState{fields: fields, address: -1, clientID: -1, token: -1, recovery: -1}
	for _, rule := range credentialRules {
		if err := rule(st); err != nil {
			return nil, err
		}
	}

	return st.record(), nil
}

func findAddress(st *parseState) error {
	for i, f := range st.fields {
		if providerAddressRe.MatchString(f) {
			st.address = i
			return nil
		}
	}
	for i, f := range st.fields {
		if strings.Contains(f, "@") {
			st.address = i
			return nil
		}
	}
	return &ParseError{Reason: "no mailbox address"}
}

// findClientID picks the last UUID-shaped field after the address
func findClientID(st *parseState) error {
	for i := len(st.fields) - 1; i > st.address; i-- {
		if isCanonicalUUID(st.fields[i]) {
			st.clientID = i
			return nil
		}
	}
	return nil
}

// findRefreshToken takes the field before the client id, or else the first
// longest field after the address that is long enough to be a token. The
// address itself is never the token.
func findRefreshToken(st *parseState) error {
	if st.clientID >= 0 {
		st.token = st.clientID - 1
		if st.token == st.address {
			return &ParseError{Reason: "client id directly follows the address"}
		}
		if st.fields[st.token] == "" {
			return &ParseError{Reason: "empty refresh token before client id"}
		}
		return nil
	}

	maxLen := 0
	for i := st.address + 1; i < len(st.fields); i++ {
		n := len(st.fields[i])
		if n >= minRefreshTokenLen && n > maxLen {
			maxLen = n
			st.token = i
		}
	}
	if st.token < 0 {
		return &ParseError{Reason: "no refresh token"}
	}
	return nil
}

// findRecovery looks for a second address between the password and the token
func findRecovery(st *parseState) error {
	email := st.fields[st.address]
	for i := st.address + 2; i < st.token; i++ {
		f := st.fields[i]
		if strings.Contains(f, "@") && f != email {
			st.recovery = i
			return nil
		}
	}
	return nil
}

func (st *parseState) record() *models.CredentialRecord {
	rec := &models.CredentialRecord{
		Email:        st.fields[st.address],
		RefreshToken: st.fields[st.token],
	}
	if st.address+1 < len(st.fields) {
		rec.Password = st.fields[st.address+1]
	}
	if st.clientID >= 0 {
		rec.ClientID = st.fields[st.clientID]
	}
	if st.recovery >= 0 {
		rec.RecoveryEmail = st.fields[st.recovery]
		if st.recovery+1 < st.token {
			rec.RecoveryPassword = st.fields[st.recovery+1]
		}
	}
	return rec
}

// isCanonicalUUID accepts only the 36-character 8-4-4-4-12 hex form.
// uuid.Parse alone also accepts the urn and braced forms.
func isCanonicalUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
