package aws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextEmail(t *testing.T) {
	in := TextEmail("admissions@must.ac.tz", "neema@example.com", "Received", "Dear Neema")

	assert.Equal(t, "admissions@must.ac.tz", *in.Source)
	assert.Equal(t, []string{"neema@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Received", *in.Message.Subject.Data)
	assert.Equal(t, "Dear Neema", *in.Message.Body.Text.Data)
	assert.Equal(t, charsetUTF8, *in.Message.Body.Text.Charset)
}

func TestTransactionalSMS(t *testing.T) {
	in := TransactionalSMS("+255700000001", "MUST", "Accepted")
	assert.Equal(t, "+255700000001", *in.PhoneNumber)
	assert.Equal(t, "Transactional", *in.MessageAttributes[attrSMSType].StringValue)
	assert.Equal(t, "MUST", *in.MessageAttributes[attrSenderID].StringValue)

	in = TransactionalSMS("+255700000001", "", "Accepted")
	_, hasSender := in.MessageAttributes[attrSenderID]
	assert.False(t, hasSender)
	require.Contains(t, in.MessageAttributes, attrSMSType)
}
