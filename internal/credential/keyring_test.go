package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s := New(keyring.NewArrayKeyring(nil))

	require.NoError(t, s.Set(SMTPKey("notice@example.com"), "secret"))

	got, err := s.Get("smtp:notice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	require.NoError(t, s.Delete(SMTPKey("notice@example.com")))
	_, err = s.Get(SMTPKey("notice@example.com"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSMTPPassword(t *testing.T) {
	s := New(keyring.NewArrayKeyring([]keyring.Item{
		{Key: SMTPKey("notice@example.com"), Data: []byte("from-keyring")},
	}))

	got, err := s.SMTPPassword("notice@example.com", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-config", got, "configured password wins")

	got, err = s.SMTPPassword("notice@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", got)

	got, err = s.SMTPPassword("other@example.com", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
