package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateToolType(t *testing.T) {
	assert.NoError(t, ValidateToolType("SQL Server DB"))
	assert.NoError(t, ValidateToolType("sql_server"))
	assert.NoError(t, ValidateToolType("gnosis_path"))
	assert.Error(t, ValidateToolType("excel"))
	assert.Error(t, ValidateToolType(""))
}

func TestValidateCIID(t *testing.T) {
	assert.NoError(t, ValidateCIID("CI-1234"))
	assert.NoError(t, ValidateCIID("app_42"))
	assert.Error(t, ValidateCIID(""))
	assert.Error(t, ValidateCIID("has space"))
	assert.Error(t, ValidateCIID("semi;colon"))
}

func TestValidateQuestionID(t *testing.T) {
	assert.NoError(t, ValidateQuestionID("q-1"))
	assert.NoError(t, ValidateQuestionID("2.04"))
	assert.Error(t, ValidateQuestionID(""))
	assert.Error(t, ValidateQuestionID("a b"))
}

func TestValidateQuestionText(t *testing.T) {
	assert.NoError(t, ValidateQuestionText("Is access reviewed quarterly?"))
	assert.Error(t, ValidateQuestionText("   "))

	long := make([]byte, maxQuestionLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidateQuestionText(string(long)))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://jira.example.com"))
	assert.Error(t, ValidateURL(""))
	assert.Error(t, ValidateURL("ftp://files.example.com"))
	assert.Error(t, ValidateURL("https://"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello\x00 "))
	assert.Equal(t, "a\tb", SanitizeString("a\tb\x01"))
}

func TestValidateLimit(t *testing.T) {
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 20, ValidateLimit(-5))
	assert.Equal(t, 50, ValidateLimit(50))
	assert.Equal(t, 100, ValidateLimit(500))
}
