// Package upi builds UPI collect links and the payment QR shown before a
// registration is submitted.
package upi

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const qrSize = 520

var (
	ErrNotConfigured = errors.New("upi payee is not configured")
	ErrInvalidAmount = errors.New("amount must be a positive number")
)

type Config struct {
	VPA  string
	Name string
	Note string
}

type Payee struct {
	cfg Config
}

func New(cfg Config) *Payee {
	cfg.VPA = strings.TrimSpace(cfg.VPA)
	return &Payee{cfg: cfg}
}

func (p *Payee) Config() Config {
	return p.cfg
}

// PaymentURI returns upi://pay?pa=..&pn=..&am=..&cu=INR&tn=..&tr=..
// with empty optional parameters left out. An empty note falls back to the
// configured one.
func (p *Payee) PaymentURI(amount, note, txnRef string) (string, error) {
	if p.cfg.VPA == "" {
		return "", ErrNotConfigured
	}
	am, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || !am.IsPositive() {
		return "", ErrInvalidAmount
	}
	if note == "" {
		note = p.cfg.Note
	}

	parts := []string{"pa=" + url.QueryEscape(p.cfg.VPA)}
	if p.cfg.Name != "" {
		parts = append(parts, "pn="+url.QueryEscape(p.cfg.Name))
	}
	parts = append(parts, "am="+am.String(), "cu=INR")
	if note != "" {
		parts = append(parts, "tn="+url.QueryEscape(note))
	}
	if txnRef != "" {
		parts = append(parts, "tr="+url.QueryEscape(txnRef))
	}
	return "upi://pay?" + strings.Join(parts, "&"), nil
}

// QR encodes the payment link as a PNG.
func (p *Payee) QR(amount, note, txnRef string) ([]byte, error) {
	uri, err := p.PaymentURI(amount, note, txnRef)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode payment qr: %w", err)
	}
	return png, nil
}
