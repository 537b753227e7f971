package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"regdesk/internal/dto"
	"regdesk/internal/model"
	"regdesk/internal/repo"
	"regdesk/pkg/validator"
)

const defaultNotifyTimeout = 15 * time.Second

// CredentialIssuer produces the credential image for a stored registration.
type CredentialIssuer interface {
	Issue(reg *model.Registration) ([]byte, error)
	Remove(ref string) error
}

type Notifier interface {
	Notify(ctx context.Context, msg dto.NotificationMessage) error
}

type Service interface {
	Submit(ctx context.Context, req dto.CreateRegistrationRequest) (*SubmitResult, error)
	CheckReference(ctx context.Context, ref string) (valid, duplicate bool, err error)
	Get(ctx context.Context, ref string) (*model.Registration, error)
	List(ctx context.Context) ([]model.Registration, error)
	Update(ctx context.Context, ref string, fields map[string]json.RawMessage) error
	Delete(ctx context.Context, ref string) error
	// Wait blocks until in-flight notifications finish.
	Wait()
}

type SubmitResult struct {
	Registration *model.Registration
	Credential   []byte
	// Warning is set when the record committed but a follow-up step failed.
	Warning string
}

type Options struct {
	NotifyTimeout time.Duration
	Now           func() time.Time
}

type service struct {
	repo     repo.Repository
	creds    CredentialIssuer
	notifier Notifier
	log      *zerolog.Logger

	notifyTimeout time.Duration
	now           func() time.Time
	inflight      sync.WaitGroup
}

func NewService(repo repo.Repository, creds CredentialIssuer, notifier Notifier, logger *zerolog.Logger, opts Options) Service {
	s := &service{
		repo:          repo,
		creds:         creds,
		notifier:      notifier,
		log:           logger,
		notifyTimeout: opts.NotifyTimeout,
		now:           opts.Now,
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = defaultNotifyTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Submit(ctx context.Context, req dto.CreateRegistrationRequest) (*SubmitResult, error) {
	receivedAt := s.now().UTC()

	req.Events = model.CleanEvents(req.Events)
	if err := validator.Validate(ctx, req); err != nil {
		return nil, s.validationError(err)
	}
	if verr := checkAmount(*req.Amount); verr != nil {
		return nil, verr
	}

	ref := strings.TrimSpace(req.PaymentReference)
	if !validator.IsPaymentReference(ref) {
		return nil, &ValidationError{
			Code:    CodeReferenceInvalid,
			Message: "Invalid payment reference number. It must be exactly 12 digits.",
			Fields:  []string{"payment_reference"},
		}
	}

	count, err := s.repo.CountByReference(ctx, ref)
	if err != nil {
		s.log.Error().Err(err).Str("utr", ref).Msg("failed to check duplicate payment reference")
		return nil, ErrStoreUnavailable
	}
	if count > 0 {
		return nil, ErrDuplicate
	}

	stored, err := s.repo.Insert(ctx, &model.Registration{
		Name:               strings.TrimSpace(req.Name),
		RegistrationNumber: strings.TrimSpace(req.RegistrationNumber),
		Mobile:             strings.TrimSpace(req.Mobile),
		Email:              strings.TrimSpace(req.Email),
		Course:             strings.TrimSpace(req.Course),
		Branch:             strings.TrimSpace(req.Branch),
		Section:            strings.TrimSpace(req.Section),
		Year:               strings.TrimSpace(req.Year),
		Campus:             strings.TrimSpace(req.Campus),
		PaymentReference:   ref,
		Amount:             *req.Amount,
		Events:             model.NormalizeEvents(req.Events),
		SubmittedAt:        receivedAt,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateReference) {
			s.log.Info().Str("utr", ref).Msg("duplicate payment reference rejected by store constraint")
			return nil, ErrDuplicate
		}
		if errors.Is(err, repo.ErrInvalidData) {
			s.log.Warn().Err(err).Str("utr", ref).Msg("registration rejected by store column limits")
			return nil, errInvalidData
		}
		s.log.Error().Err(err).Str("utr", ref).Msg("failed to insert registration")
		return nil, ErrStoreUnavailable
	}

	s.log.Info().Int64("registration_id", stored.ID).Str("utr", ref).Msg("registration created successfully")

	result := &SubmitResult{Registration: stored}
	png, err := s.creds.Issue(stored)
	if err != nil {
		s.log.Error().Err(err).Str("utr", ref).Msg("failed to generate credential after commit")
		result.Warning = "Registration saved, but the QR code could not be generated."
	} else {
		result.Credential = png
	}

	s.dispatchNotification(stored, result.Credential)
	return result, nil
}

func (s *service) validationError(err error) error {
	var verrs validator.Errors
	if !errors.As(err, &verrs) {
		return &ValidationError{Code: CodeFieldIncorrect, Message: err.Error()}
	}
	if missing := verrs.Fields(true); len(missing) > 0 {
		return missingFields(missing)
	}
	fields := verrs.Fields(false)
	return &ValidationError{
		Code:    CodeFieldIncorrect,
		Message: "Field '" + fields[0] + "' has bad format",
		Fields:  fields,
	}
}

// dispatchNotification fires once and never reports back to the caller.
func (s *service) dispatchNotification(reg *model.Registration, credential []byte) {
	if s.notifier == nil {
		return
	}
	msg := dto.NotificationMessage{
		RegistrationID:   reg.ID,
		PaymentReference: reg.PaymentReference,
		Name:             reg.Name,
		Email:            reg.Email,
		Events:           reg.Events,
		Amount:           reg.Amount.String(),
		Credential:       credential,
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(ctx, msg); err != nil {
			s.log.Warn().Err(err).Str("utr", msg.PaymentReference).Msg("failed to send registration notification")
		}
	}()
}

func (s *service) Wait() {
	s.inflight.Wait()
}

func (s *service) CheckReference(ctx context.Context, ref string) (bool, bool, error) {
	ref = strings.TrimSpace(ref)
	if !validator.IsPaymentReference(ref) {
		return false, false, nil
	}
	count, err := s.repo.CountByReference(ctx, ref)
	if err != nil {
		s.log.Error().Err(err).Str("utr", ref).Msg("failed to check payment reference")
		return true, false, ErrStoreUnavailable
	}
	return true, count > 0, nil
}

func (s *service) Get(ctx context.Context, ref string) (*model.Registration, error) {
	reg, err := s.repo.GetByReference(ctx, strings.TrimSpace(ref))
	if err != nil {
		return nil, s.storeError(err, "failed to get registration")
	}
	return reg, nil
}

func (s *service) List(ctx context.Context) ([]model.Registration, error) {
	regs, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, s.storeError(err, "failed to list registrations")
	}
	return regs, nil
}

func (s *service) Update(ctx context.Context, ref string, fields map[string]json.RawMessage) error {
	patch, err := ParsePatch(fields)
	if err != nil {
		return err
	}
	ref = strings.TrimSpace(ref)
	if err := s.repo.UpdateFields(ctx, ref, patch); err != nil {
		return s.storeError(err, "failed to update registration")
	}
	s.log.Info().Str("utr", ref).Msg("registration updated")
	return nil
}

func (s *service) Delete(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	n, err := s.repo.DeleteByReference(ctx, ref)
	if err != nil {
		return s.storeError(err, "failed to delete registration")
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := s.creds.Remove(ref); err != nil {
		s.log.Warn().Err(err).Str("utr", ref).Msg("failed to remove credential image")
	}
	s.log.Info().Str("utr", ref).Int64("removed", n).Msg("registration deleted")
	return nil
}

func (s *service) storeError(err error, msg string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, repo.ErrInvalidData) {
		s.log.Warn().Err(err).Msg(msg)
		return errInvalidData
	}
	s.log.Error().Err(err).Msg(msg)
	if errors.Is(err, repo.ErrUnavailable) {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("%s: %w", msg, err)
}
