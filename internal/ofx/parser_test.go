package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/gigproof/internal/classifier"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/platform"
	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>312.45
<FITID>2024012001
<NAME>DIRECT DEP UBER USA 6787
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>80.00
<FITID>2024012501
<NAME>DEPOSIT
<MEMO>DOORDASH INC PAYROLL
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{name: "valid bank statement", ofxData: sampleBankOFX, expectedCount: 3},
		{name: "valid credit card statement", ofxData: sampleCreditCardOFX, expectedCount: 2},
		{name: "invalid OFX data", ofxData: "not valid OFX", expectedError: true},
		{name: "empty OFX", ofxData: "", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transactions, err := NewParser().ParseFile(context.Background(), strings.NewReader(tt.ofxData))

			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, transactions, tt.expectedCount)
		})
	}
}

func TestParseFile_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().ParseFile(ctx, strings.NewReader(sampleBankOFX))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseBankTransactions(t *testing.T) {
	transactions, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, transactions, 3)

	// Debits become positive amounts
	tx1 := transactions[0]
	assert.Equal(t, "ofx-1234567890-2024011501", tx1.ID)
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.Description)
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.MerchantName)
	assert.InDelta(t, 25.50, tx1.Amount, 0.0001)
	assert.False(t, tx1.IsCredit())
	assert.Equal(t, "1234567890", tx1.AccountID)
	assert.Equal(t, "USD", tx1.CurrencyCode)
	assert.Equal(t, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), tx1.Date)

	// Deposits become negative amounts
	tx2 := transactions[1]
	assert.Equal(t, "DIRECT DEP UBER USA 6787", tx2.Description)
	assert.Equal(t, "UBER USA 6787", tx2.MerchantName)
	assert.InDelta(t, -312.45, tx2.Amount, 0.0001)
	assert.True(t, tx2.IsCredit())

	// Generic names fall back to the memo
	tx3 := transactions[2]
	assert.Equal(t, "DEPOSIT", tx3.Description)
	assert.Equal(t, "DOORDASH INC PAYROLL", tx3.MerchantName)
	assert.InDelta(t, -80.0, tx3.Amount, 0.0001)
}

func TestParsedTransactionsClassify(t *testing.T) {
	transactions, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)

	c := classifier.New(
		platform.NewMatcher(platform.DefaultTable()),
		classifier.EnvironmentProduction,
		common.NewFixedClock(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
	)
	result := c.ClassifyAll(transactions)
	require.Len(t, result.Classified, 3)

	assert.False(t, result.Classified[0].IsGigIncome)
	assert.True(t, result.Classified[1].IsGigIncome)
	assert.Equal(t, "Uber", result.Classified[1].Platform())
	assert.True(t, result.Classified[2].IsGigIncome)
	assert.Equal(t, "DoorDash", result.Classified[2].Platform())
}

func TestParseCreditCardTransactions(t *testing.T) {
	transactions, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	tx1 := transactions[0]
	assert.Equal(t, "ofx-4111111111111111-CC2024011001", tx1.ID)
	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", tx1.Description)
	assert.InDelta(t, 45.99, tx1.Amount, 0.0001)
	assert.Equal(t, "4111111111111111", tx1.AccountID)

	tx2 := transactions[1]
	assert.Equal(t, "NETFLIX.COM", tx2.Description)
	assert.InDelta(t, 15.00, tx2.Amount, 0.0001)
}

func TestExtractMerchantName(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		memo     string
		expected string
	}{
		{name: "remove POS prefix", input: "POS PURCHASE STARBUCKS", expected: "STARBUCKS"},
		{name: "remove direct deposit prefix", input: "DIRECT DEPOSIT LYFT", expected: "LYFT"},
		{name: "keep clean name", input: "NETFLIX.COM", expected: "NETFLIX.COM"},
		{name: "trim whitespace", input: "  AMAZON.COM  ", expected: "AMAZON.COM"},
		{name: "generic name uses memo", input: "CREDIT", memo: "INSTACART SHOPPER PAY", expected: "INSTACART SHOPPER PAY"},
		{name: "strip leading date", input: "01/15 GRUBHUB", expected: "GRUBHUB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := ofxgo.Transaction{
				Name: ofxgo.String(tt.input),
				Memo: ofxgo.String(tt.memo),
			}
			assert.Equal(t, tt.expected, parser.extractMerchantName(tx))
		})
	}
}

func TestPreprocessOFX(t *testing.T) {
	parser := NewParser()
	in := "\n\n  <SEVERITY>Info</SEVERITY>\n<CODE\n"
	out := parser.preprocessOFX(in)
	assert.Equal(t, "<SEVERITY>INFO</SEVERITY>\n<CODE>\n", out)
}

func TestGetAccounts(t *testing.T) {
	parser := NewParser()

	accounts, err := parser.GetAccounts(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890"}, accounts)

	accounts, err = parser.GetAccounts(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"4111111111111111"}, accounts)
}
