package api

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/nicksnyder/go-i18n/v2/i18n"

	"fluxmail/models"
	"fluxmail/storage"
	"fluxmail/utils"
)

// passwordAlphabet omits characters that are easy to confuse (0/O, 1/l/I)
const passwordAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789"

const generatedPasswordLength = 10

// AccountCreator is the part of the account store bulk ingestion needs
type AccountCreator interface {
	FindByEmail(email string) (*models.Account, error)
	CreateAccount(acc *models.Account, password string) error
}

// ImportCredentials parses data line by line and creates one active account
// per parseable, previously unknown address. The local login is the address
// and the local password is the mailbox password, or a generated one when
// the line carries none or one longer than storage.MaxPasswordLength.
// Messages are localized with localizer, which may be nil.
func ImportCredentials(store AccountCreator, data string, localizer *i18n.Localizer) *models.ImportResult {
	result := models.NewImportResult()

	fail := func(messageID string, fields map[string]interface{}) {
		result.Failed++
		result.Errors = append(result.Errors, utils.TWithData(localizer, messageID, fields))
	}

	for _, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		record, err := utils.ParseCredentialLine(line)
		if err != nil {
			fail("import.parse_failed", map[string]interface{}{"Line": preview(line)})
			continue
		}

		if _, err := store.FindByEmail(record.Email); err == nil {
			fail("import.duplicate", map[string]interface{}{"Email": record.Email})
			continue
		}

		// A password bcrypt cannot hash is replaced rather than failing the line
		password := record.Password
		if password == "" || len(password) > storage.MaxPasswordLength {
			if password, err = generatePassword(); err != nil {
				fail("import.create_failed", map[string]interface{}{"Email": record.Email, "Error": err.Error()})
				continue
			}
		}

		acc := &models.Account{
			Email:            record.Email,
			MailboxPassword:  record.Password,
			RecoveryEmail:    record.RecoveryEmail,
			RecoveryPassword: record.RecoveryPassword,
			RefreshToken:     record.RefreshToken,
			ClientID:         record.ClientID,
			Login:            record.Email,
			DisplayName:      models.LocalPart(record.Email),
			Active:           true,
		}
		err = store.CreateAccount(acc, password)
		switch {
		case errors.Is(err, storage.ErrDuplicateEmail):
			fail("import.duplicate", map[string]interface{}{"Email": record.Email})
			continue
		case err != nil:
			fail("import.create_failed", map[string]interface{}{"Email": record.Email, "Error": err.Error()})
			continue
		}

		result.Success++
		result.Accounts = append(result.Accounts, models.ImportedAccount{
			Email:    acc.Email,
			Login:    acc.Login,
			Password: password,
		})
	}

	utils.Log.WithFields(map[string]interface{}{
		"success": result.Success,
		"failed":  result.Failed,
	}).Info("Bulk import finished")

	return result
}

// preview shortens a rejected line so error lists stay readable and do not
// echo whole refresh tokens
func preview(line string) string {
	const max = 60
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= max {
		return line
	}
	return string([]rune(line)[:max]) + "…"
}

func generatePassword() (string, error) {
	limit := big.NewInt(int64(len(passwordAlphabet)))
	b := make([]byte, generatedPasswordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = passwordAlphabet[n.Int64()]
	}
	return string(b), nil
}
