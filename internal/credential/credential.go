// Package credential renders the scannable QR credential handed out after a
// registration commits.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"regdesk/internal/model"
)

const defaultSize = 256

// Payload is the canonical subset of a stored registration encoded in the QR.
type Payload struct {
	Name               string          `json:"name"`
	RegistrationNumber string          `json:"regno"`
	Campus             string          `json:"campus"`
	PaymentReference   string          `json:"utr"`
	Amount             decimal.Decimal `json:"amount"`
	Events             []string        `json:"events"`
	Timestamp          time.Time       `json:"ts"`
}

func PayloadFor(reg *model.Registration) ([]byte, error) {
	return json.Marshal(Payload{
		Name:               reg.Name,
		RegistrationNumber: reg.RegistrationNumber,
		Campus:             reg.Campus,
		PaymentReference:   reg.PaymentReference,
		Amount:             reg.Amount,
		Events:             model.NormalizeEvents(reg.Events),
		Timestamp:          reg.SubmittedAt,
	})
}

type Generator struct {
	size int
	dir  string
	log  *zerolog.Logger
}

// NewGenerator returns a generator that also keeps a PNG copy per reference
// under dir. An empty dir disables the archive.
func NewGenerator(size int, dir string, log *zerolog.Logger) (*Generator, error) {
	if size <= 0 {
		size = defaultSize
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create credentials dir: %w", err)
		}
	}
	return &Generator{size: size, dir: dir, log: log}, nil
}

// Issue encodes the registration as a PNG QR code.
func (g *Generator) Issue(reg *model.Registration) ([]byte, error) {
	payload, err := PayloadFor(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential payload: %w", err)
	}
	png, err := qrcode.Encode(string(payload), qrcode.Medium, g.size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate qr code: %w", err)
	}

	if g.dir != "" {
		if err := os.WriteFile(g.path(reg.PaymentReference), png, 0o644); err != nil {
			g.log.Warn().Err(err).Str("utr", reg.PaymentReference).Msg("failed to archive credential image")
		}
	}
	return png, nil
}

// Remove deletes the archived image for ref; a missing file is not an error.
func (g *Generator) Remove(ref string) error {
	if g.dir == "" {
		return nil
	}
	err := os.Remove(g.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (g *Generator) path(ref string) string {
	return filepath.Join(g.dir, "credential-"+filepath.Base(ref)+".png")
}

func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
