package models

// CredentialRecord is the structured form of one bulk credential line.
// Email and RefreshToken are always set on a successful parse.
type CredentialRecord struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	RecoveryEmail    string `json:"recovery_email,omitempty"`
	RecoveryPassword string `json:"recovery_password,omitempty"`
	RefreshToken     string `json:"refresh_token"`
	ClientID         string `json:"client_id,omitempty"`
}

// ImportedAccount is reported back once per created account so the admin
// can hand out the local login.
type ImportedAccount struct {
	Email    string `json:"email"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

// ImportResult aggregates a bulk ingestion run
type ImportResult struct {
	Success  int               `json:"success"`
	Failed   int               `json:"failed"`
	Errors   []string          `json:"errors"`
	Accounts []ImportedAccount `json:"accounts"`
}

// NewImportResult returns a result with non-nil slices so it encodes as []
func NewImportResult() *ImportResult {
	return &ImportResult{
		Errors:   []string{},
		Accounts: []ImportedAccount{},
	}
}
