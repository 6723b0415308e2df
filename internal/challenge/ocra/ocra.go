// Package ocra computes OATH challenge-response values (RFC 6287).
package ocra

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSuite is returned for suite strings that do not follow RFC 6287.
var ErrInvalidSuite = errors.New("invalid ocra suite")

// ErrInvalidInput is returned when an input does not fit the suite.
var ErrInvalidInput = errors.New("invalid ocra input")

const (
	questionHexLen    = 256
	defaultSessionLen = 64
)

// QuestionFormat is the encoding of the challenge question.
type QuestionFormat byte

const (
	QuestionNumeric      QuestionFormat = 'N'
	QuestionAlphanumeric QuestionFormat = 'A'
	QuestionHex          QuestionFormat = 'H'
)

// Suite is a parsed OCRA suite such as "OCRA-1:HOTP-SHA1-6:QN08".
type Suite struct {
	raw      string
	hash     func() hash.Hash
	digits   int
	counter  bool
	question QuestionFormat
	pin      func() hash.Hash
	// sessionLen is zero when the suite carries no session information.
	sessionLen int
	timeStep   time.Duration
}

// Input holds the per-computation values. Only the fields the suite
// declares are used.
type Input struct {
	Counter  uint64
	Question string
	PIN      string
	// Session is hex encoded.
	Session string
	Time    time.Time
}

// ParseSuite parses an OCRA suite string.
func ParseSuite(raw string) (*Suite, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || parts[0] != "OCRA-1" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSuite, raw)
	}
	s := &Suite{raw: raw}

	crypto := strings.Split(parts[1], "-")
	if len(crypto) != 3 || crypto[0] != "HOTP" {
		return nil, fmt.Errorf("%w: crypto function %q", ErrInvalidSuite, parts[1])
	}
	h, ok := hashFor(crypto[1])
	if !ok {
		return nil, fmt.Errorf("%w: hash %q", ErrInvalidSuite, crypto[1])
	}
	s.hash = h
	digits, err := strconv.Atoi(crypto[2])
	if err != nil || digits < 4 || digits > 10 {
		return nil, fmt.Errorf("%w: digits %q", ErrInvalidSuite, crypto[2])
	}
	s.digits = digits

	for _, field := range strings.Split(parts[2], "-") {
		if err := s.parseDataInput(field); err != nil {
			return nil, err
		}
	}
	if s.question == 0 {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidSuite)
	}
	return s, nil
}

func (s *Suite) parseDataInput(field string) error {
	if field == "" {
		return fmt.Errorf("%w: empty data input", ErrInvalidSuite)
	}
	switch field[0] {
	case 'C':
		if field != "C" {
			return fmt.Errorf("%w: counter %q", ErrInvalidSuite, field)
		}
		s.counter = true
	case 'Q':
		if len(field) != 4 {
			return fmt.Errorf("%w: question %q", ErrInvalidSuite, field)
		}
		switch f := QuestionFormat(field[1]); f {
		case QuestionNumeric, QuestionAlphanumeric, QuestionHex:
			s.question = f
		default:
			return fmt.Errorf("%w: question format %q", ErrInvalidSuite, field)
		}
		n, err := strconv.Atoi(field[2:])
		if err != nil || n < 4 || n > 64 {
			return fmt.Errorf("%w: question length %q", ErrInvalidSuite, field)
		}
	case 'P':
		h, ok := hashFor(field[1:])
		if !ok {
			return fmt.Errorf("%w: pin hash %q", ErrInvalidSuite, field)
		}
		s.pin = h
	case 'S':
		// A bare S means the default 64 byte session length.
		s.sessionLen = defaultSessionLen
		if len(field) > 1 {
			n, err := strconv.Atoi(field[1:])
			if err != nil || n < 1 || n > 512 {
				return fmt.Errorf("%w: session %q", ErrInvalidSuite, field)
			}
			s.sessionLen = n
		}
	case 'T':
		step, err := parseTimeStep(field[1:])
		if err != nil {
			return err
		}
		s.timeStep = step
	default:
		return fmt.Errorf("%w: data input %q", ErrInvalidSuite, field)
	}
	return nil
}

func (s *Suite) String() string { return s.raw }

// Digits is the length of the responses the suite produces.
func (s *Suite) Digits() int { return s.digits }

// Compute returns the OCRA response for key and in.
func (s *Suite) Compute(key []byte, in Input) (string, error) {
	msg := make([]byte, 0, len(s.raw)+1+8+questionHexLen/2+sha512.Size+s.sessionLen+8)
	msg = append(msg, s.raw...)
	msg = append(msg, 0)

	if s.counter {
		msg = binary.BigEndian.AppendUint64(msg, in.Counter)
	}

	question, err := s.encodeQuestion(in.Question)
	if err != nil {
		return "", err
	}
	msg = append(msg, question...)

	if s.pin != nil {
		h := s.pin()
		h.Write([]byte(in.PIN))
		msg = h.Sum(msg)
	}

	if s.sessionLen > 0 {
		session, err := leftPadHex(in.Session, s.sessionLen)
		if err != nil {
			return "", err
		}
		msg = append(msg, session...)
	}

	if s.timeStep > 0 {
		steps := uint64(in.Time.Unix()) / uint64(s.timeStep/time.Second)
		msg = binary.BigEndian.AppendUint64(msg, steps)
	}

	mac := hmac.New(s.hash, key)
	mac.Write(msg)
	return truncate(mac.Sum(nil), s.digits), nil
}

// Compute parses suite and computes a response in one step.
func Compute(suite string, key []byte, in Input) (string, error) {
	s, err := ParseSuite(suite)
	if err != nil {
		return "", err
	}
	return s.Compute(key, in)
}

func (s *Suite) encodeQuestion(q string) ([]byte, error) {
	if q == "" {
		return nil, fmt.Errorf("%w: empty question", ErrInvalidInput)
	}
	var hexQ string
	switch s.question {
	case QuestionNumeric:
		n, ok := new(big.Int).SetString(q, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("%w: numeric question %q", ErrInvalidInput, q)
		}
		hexQ = n.Text(16)
	case QuestionAlphanumeric:
		hexQ = hex.EncodeToString([]byte(q))
	case QuestionHex:
		hexQ = q
	}
	if len(hexQ) > questionHexLen {
		return nil, fmt.Errorf("%w: question too long", ErrInvalidInput)
	}
	hexQ += strings.Repeat("0", questionHexLen-len(hexQ))
	out, err := hex.DecodeString(hexQ)
	if err != nil {
		return nil, fmt.Errorf("%w: question is not hex: %v", ErrInvalidInput, err)
	}
	return out, nil
}

func leftPadHex(value string, size int) ([]byte, error) {
	if len(value) > size*2 {
		return nil, fmt.Errorf("%w: session longer than %d bytes", ErrInvalidInput, size)
	}
	padded := strings.Repeat("0", size*2-len(value)) + value
	out, err := hex.DecodeString(padded)
	if err != nil {
		return nil, fmt.Errorf("%w: session is not hex: %v", ErrInvalidInput, err)
	}
	return out, nil
}

func truncate(sum []byte, digits int) string {
	offset := sum[len(sum)-1] & 0x0f
	bin := uint64(sum[offset]&0x7f)<<24 |
		uint64(sum[offset+1])<<16 |
		uint64(sum[offset+2])<<8 |
		uint64(sum[offset+3])

	mod := uint64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func hashFor(name string) (func() hash.Hash, bool) {
	switch name {
	case "SHA1":
		return sha1.New, true
	case "SHA256":
		return sha256.New, true
	case "SHA512":
		return sha512.New, true
	default:
		return nil, false
	}
}

func parseTimeStep(spec string) (time.Duration, error) {
	if len(spec) < 2 {
		return 0, fmt.Errorf("%w: time step %q", ErrInvalidSuite, spec)
	}
	n, err := strconv.Atoi(spec[:len(spec)-1])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: time step %q", ErrInvalidSuite, spec)
	}
	switch spec[len(spec)-1] {
	case 'S':
		return time.Duration(n) * time.Second, nil
	case 'M':
		return time.Duration(n) * time.Minute, nil
	case 'H':
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: time step %q", ErrInvalidSuite, spec)
	}
}
