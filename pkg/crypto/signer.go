package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

var ErrInvalidSignature = errors.New("invalid signature")

type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(data []byte, signature string) error {
	if !hmac.Equal([]byte(s.Sign(data)), []byte(signature)) {
		s.logger.Warn("Signature verification failed", slog.Int("payload_bytes", len(data)))
		return ErrInvalidSignature
	}
	return nil
}

// SignTransfer signs the canonical form id:amount:fee:unix of a committed transfer.
func (s *Signer) SignTransfer(transactionID string, amount, fee decimal.Decimal, timestamp int64) string {
	return s.Sign(transferDigest(transactionID, amount, fee, timestamp))
}

func (s *Signer) VerifyTransfer(transactionID string, amount, fee decimal.Decimal, timestamp int64, signature string) error {
	return s.Verify(transferDigest(transactionID, amount, fee, timestamp), signature)
}

func transferDigest(transactionID string, amount, fee decimal.Decimal, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%d", transactionID, amount.StringFixed(2), fee.StringFixed(2), timestamp))
}
