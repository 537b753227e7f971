package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"regdesk/internal/model"
)

const (
	uniqueViolation = "23505"
	// SQLSTATE class 22: string too long, numeric out of range and friends.
	dataExceptionClass = "22"
)

const registrationColumns = `id, name, regno, mobile, email, course, branch, section, year, campus, utr, amount, events, timestamp`

type PostgresRepository struct {
	db      *dbpg.DB
	log     *zerolog.Logger
	timeout time.Duration
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger, timeout time.Duration) (*PostgresRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresRepository{db: db, log: log, timeout: timeout}, nil
}

// withConn runs fn on a dedicated pool connection bounded by the query timeout.
// The connection goes back to the pool on every exit path.
func (r *PostgresRepository) withConn(ctx context.Context, op string, fn func(ctx context.Context, conn *sql.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conn, err := r.db.Master.Conn(ctx)
	if err != nil {
		return unavailable(op, err)
	}
	defer conn.Close()

	return fn(ctx, conn)
}

func (r *PostgresRepository) CountByReference(ctx context.Context, ref string) (int, error) {
	var count int
	err := r.withConn(ctx, "count registrations", func(ctx context.Context, conn *sql.Conn) error {
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations WHERE utr = $1`, ref).Scan(&count); err != nil {
			return unavailable("count registrations", err)
		}
		return nil
	})
	return count, err
}

func (r *PostgresRepository) Insert(ctx context.Context, reg *model.Registration) (*model.Registration, error) {
	events, err := json.Marshal(model.NormalizeEvents(reg.Events))
	if err != nil {
		return nil, fmt.Errorf("failed to encode events: %w", err)
	}
	submittedAt := reg.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	var stored *model.Registration
	err = r.withConn(ctx, "insert registration", func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return unavailable("begin transaction", err)
		}

		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		row := tx.QueryRowContext(ctx, `
			INSERT INTO registrations (name, regno, mobile, email, course, branch, section, year, campus, utr, amount, events, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING `+registrationColumns,
			reg.Name, reg.RegistrationNumber, nullable(reg.Mobile), nullable(reg.Email), reg.Course, reg.Branch,
			reg.Section, reg.Year, reg.Campus, reg.PaymentReference, reg.Amount, string(events), submittedAt,
		)
		stored, err = scanRegistration(row)
		if err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return ErrDuplicateReference
			}
			if isDataException(err) {
				return invalidData("insert registration", err)
			}
			return unavailable("insert registration", err)
		}

		r.writeAuditCopy(ctx, tx, stored)

		if err := tx.Commit(); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateReference
			}
			return unavailable("commit transaction", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// writeAuditCopy runs under a savepoint so a failed snapshot does not poison the transaction.
func (r *PostgresRepository) writeAuditCopy(ctx context.Context, tx *sql.Tx, reg *model.Registration) {
	payload, err := json.Marshal(reg)
	if err != nil {
		r.log.Warn().Err(err).Str("utr", reg.PaymentReference).Msg("failed to encode audit copy")
		return
	}
	if _, err := tx.ExecContext(ctx, `SAVEPOINT audit_copy`); err != nil {
		r.log.Warn().Err(err).Str("utr", reg.PaymentReference).Msg("failed to open audit savepoint")
		return
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO audit_registrations (registration_id, payload) VALUES ($1, $2)`,
		reg.ID, string(payload),
	); err != nil {
		r.log.Warn().Err(err).Int64("registration_id", reg.ID).Msg("failed to write audit copy")
		if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT audit_copy`); err != nil {
			r.log.Warn().Err(err).Msg("failed to roll back audit savepoint")
		}
		return
	}
	_, _ = tx.ExecContext(ctx, `RELEASE SAVEPOINT audit_copy`)
}

func (r *PostgresRepository) GetByReference(ctx context.Context, ref string) (*model.Registration, error) {
	var reg *model.Registration
	err := r.withConn(ctx, "get registration", func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE utr = $1`, ref)
		var err error
		reg, err = scanRegistration(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return unavailable("get registration", err)
		}
		return nil
	})
	return reg, err
}

func (r *PostgresRepository) GetAll(ctx context.Context) ([]model.Registration, error) {
	regs := []model.Registration{}
	err := r.withConn(ctx, "list registrations", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT `+registrationColumns+` FROM registrations ORDER BY timestamp DESC, id DESC`)
		if err != nil {
			return unavailable("list registrations", err)
		}
		defer rows.Close()

		for rows.Next() {
			reg, err := scanRegistration(rows)
			if err != nil {
				return unavailable("scan registration", err)
			}
			regs = append(regs, *reg)
		}
		if err := rows.Err(); err != nil {
			return unavailable("list registrations", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *PostgresRepository) UpdateFields(ctx context.Context, ref string, patch model.RegistrationPatch) error {
	query, args, err := buildUpdate(ref, patch)
	if err != nil {
		return err
	}
	return r.withConn(ctx, "update registration", func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			if isDataException(err) {
				return invalidData("update registration", err)
			}
			return unavailable("update registration", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable("update registration", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *PostgresRepository) DeleteByReference(ctx context.Context, ref string) (int64, error) {
	var n int64
	err := r.withConn(ctx, "delete registration", func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM registrations WHERE utr = $1`, ref)
		if err != nil {
			return unavailable("delete registration", err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return unavailable("delete registration", err)
		}
		return nil
	})
	return n, err
}

// buildUpdate only ever emits the fixed allow-listed column names.
func buildUpdate(ref string, patch model.RegistrationPatch) (string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Mobile != nil {
		add("mobile", nullable(*patch.Mobile))
	}
	if patch.Course != nil {
		add("course", *patch.Course)
	}
	if patch.Branch != nil {
		add("branch", *patch.Branch)
	}
	if patch.Section != nil {
		add("section", *patch.Section)
	}
	if patch.Year != nil {
		add("year", *patch.Year)
	}
	if patch.Campus != nil {
		add("campus", *patch.Campus)
	}
	if patch.Amount != nil {
		add("amount", *patch.Amount)
	}
	if patch.Events != nil {
		events, err := json.Marshal(model.NormalizeEvents(*patch.Events))
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode events: %w", err)
		}
		add("events", string(events))
	}
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("empty patch")
	}

	args = append(args, ref)
	query := fmt.Sprintf("UPDATE registrations SET %s WHERE utr = $%d", strings.Join(sets, ", "), len(args))
	return query, args, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(s scanner) (*model.Registration, error) {
	var (
		reg           model.Registration
		mobile, email sql.NullString
		events        []byte
	)
	if err := s.Scan(
		&reg.ID,
		&reg.Name,
		&reg.RegistrationNumber,
		&mobile,
		&email,
		&reg.Course,
		&reg.Branch,
		&reg.Section,
		&reg.Year,
		&reg.Campus,
		&reg.PaymentReference,
		&reg.Amount,
		&events,
		&reg.SubmittedAt,
	); err != nil {
		return nil, err
	}
	reg.Mobile = mobile.String
	reg.Email = email.String
	if len(events) > 0 {
		if err := json.Unmarshal(events, &reg.Events); err != nil {
			return nil, fmt.Errorf("failed to decode events: %w", err)
		}
	}
	reg.Events = model.NormalizeEvents(reg.Events)
	return &reg, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func isDataException(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && strings.HasPrefix(string(pqErr.Code), dataExceptionClass)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
