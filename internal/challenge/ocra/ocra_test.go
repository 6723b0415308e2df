package ocra

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	key20 = mustHex("3132333435363738393031323334353637383930")
	key32 = mustHex("3132333435363738393031323334353637383930313233343536373839303132")
	key64 = mustHex(strings.Repeat("31323334353637383930", 6) + "31323334")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestComputeOneWayVectors(t *testing.T) {
	tests := []struct {
		name     string
		suite    string
		key      []byte
		input    Input
		expected string
	}{
		{name: "sha1 q0", suite: "OCRA-1:HOTP-SHA1-6:QN08", key: key20, input: Input{Question: "00000000"}, expected: "237653"},
		{name: "sha1 q1", suite: "OCRA-1:HOTP-SHA1-6:QN08", key: key20, input: Input{Question: "11111111"}, expected: "243178"},
		{name: "sha1 q2", suite: "OCRA-1:HOTP-SHA1-6:QN08", key: key20, input: Input{Question: "22222222"}, expected: "653583"},
		{name: "sha1 q3", suite: "OCRA-1:HOTP-SHA1-6:QN08", key: key20, input: Input{Question: "33333333"}, expected: "740991"},
		{name: "counter and pin c0", suite: "OCRA-1:HOTP-SHA256-8:C-QN08-PSHA1", key: key32, input: Input{Counter: 0, Question: "12345678", PIN: "1234"}, expected: "65347737"},
		{name: "counter and pin c1", suite: "OCRA-1:HOTP-SHA256-8:C-QN08-PSHA1", key: key32, input: Input{Counter: 1, Question: "12345678", PIN: "1234"}, expected: "86775851"},
		{name: "pin q0", suite: "OCRA-1:HOTP-SHA256-8:QN08-PSHA1", key: key32, input: Input{Question: "00000000", PIN: "1234"}, expected: "83238735"},
		{name: "pin q1", suite: "OCRA-1:HOTP-SHA256-8:QN08-PSHA1", key: key32, input: Input{Question: "11111111", PIN: "1234"}, expected: "01501458"},
		{name: "sha512 counter c0", suite: "OCRA-1:HOTP-SHA512-8:C-QN08", key: key64, input: Input{Counter: 0, Question: "00000000"}, expected: "07016083"},
		{name: "sha512 counter c1", suite: "OCRA-1:HOTP-SHA512-8:C-QN08", key: key64, input: Input{Counter: 1, Question: "11111111"}, expected: "63947962"},
		{name: "sha512 time", suite: "OCRA-1:HOTP-SHA512-8:QN08-T1M", key: key64, input: Input{Question: "00000000", Time: time.Unix(0x132d0b6*60, 0)}, expected: "95209754"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.suite, tt.key, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestComputeSession(t *testing.T) {
	suite, err := ParseSuite("OCRA-1:HOTP-SHA1-6:QH10-S")
	require.NoError(t, err)
	assert.Equal(t, 6, suite.Digits())

	a, err := suite.Compute(key32, Input{Question: "0a1b2c3d4e", Session: "abcdef"})
	require.NoError(t, err)
	b, err := suite.Compute(key32, Input{Question: "0a1b2c3d4e", Session: "abcdef"})
	require.NoError(t, err)
	c, err := suite.Compute(key32, Input{Question: "0a1b2c3d4e", Session: "abcdee"})
	require.NoError(t, err)

	assert.Len(t, a, 6)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestComputeAlphanumericMatchesHex(t *testing.T) {
	alpha, err := Compute("OCRA-1:HOTP-SHA1-6:QA08", key20, Input{Question: "ab"})
	require.NoError(t, err)
	hexed, err := Compute("OCRA-1:HOTP-SHA1-6:QA08", key20, Input{Question: "6162"})
	require.NoError(t, err)
	assert.Len(t, alpha, 6)
	assert.NotEqual(t, alpha, hexed)
}

func TestParseSuiteRejects(t *testing.T) {
	invalid := []string{
		"",
		"OCRA-2:HOTP-SHA1-6:QN08",
		"OCRA-1:HOTP-MD5-6:QN08",
		"OCRA-1:HOTP-SHA1-3:QN08",
		"OCRA-1:HOTP-SHA1-11:QN08",
		"OCRA-1:TOTP-SHA1-6:QN08",
		"OCRA-1:HOTP-SHA1-6:QX08",
		"OCRA-1:HOTP-SHA1-6:QN99",
		"OCRA-1:HOTP-SHA1-6:C",
		"OCRA-1:HOTP-SHA1-6:QN08-PMD5",
		"OCRA-1:HOTP-SHA1-6:QN08-T1X",
		"OCRA-1:HOTP-SHA1-6:QN08-Z",
		"OCRA-1:HOTP-SHA1-6:QN08--S",
	}
	for _, raw := range invalid {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseSuite(raw)
			assert.ErrorIs(t, err, ErrInvalidSuite)
		})
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := Compute("OCRA-1:HOTP-SHA1-6:QN08", key20, Input{Question: "12ab"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute("OCRA-1:HOTP-SHA1-6:QH08", key20, Input{Question: "zz"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute("OCRA-1:HOTP-SHA1-6:QH08", key20, Input{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute("OCRA-1:HOTP-SHA1-6:QH08-S002", key20, Input{Question: "ab", Session: "0102030405"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
