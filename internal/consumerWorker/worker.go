package consumerWorker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"regdesk/internal/dto"
)

const defaultSendTimeout = 30 * time.Second

type Consumer interface {
	Consume(handler func([]byte) error) error
}

type Sender interface {
	SendRegistrationEmail(ctx context.Context, msg dto.NotificationMessage) error
}

// Reader drains the notification queue and mails each registration.
type Reader struct {
	RMQ     Consumer
	sender  Sender
	log     *zerolog.Logger
	timeout time.Duration

	ctx    context.Context
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq Consumer, sender Sender, log *zerolog.Logger, timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Reader{
		RMQ:     rmq,
		sender:  sender,
		log:     log,
		timeout: timeout,
		ctx:     context.Background(),
		done:    make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.ctx = cctx
	r.cancel = cancel

	r.log.Info().Msg("RabbitMQ reader started")

	go func() {
		defer close(r.done)

		if err := r.RMQ.Consume(r.handle); err != nil {
			r.log.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		r.log.Info().Msg("RabbitMQ reader stopped by context")
	}()
}

// handle only fails on undecodable bodies. Delivery failures are logged and
// the message is acknowledged.
func (r *Reader) handle(body []byte) error {
	var msg dto.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		r.log.Error().
			Err(err).
			Msgf("failed to unmarshal message: %s", string(body))
		return err
	}

	r.log.Info().
		Int64("registration_id", msg.RegistrationID).
		Str("utr", msg.PaymentReference).
		Msg("received notification from RabbitMQ")

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	if err := r.sender.SendRegistrationEmail(ctx, msg); err != nil {
		r.log.Warn().
			Err(err).
			Str("utr", msg.PaymentReference).
			Msg("failed to send registration e-mail")
		return nil
	}

	r.log.Info().
		Str("email", msg.Email).
		Int64("registration_id", msg.RegistrationID).
		Msg("registration e-mail sent successfully")
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
