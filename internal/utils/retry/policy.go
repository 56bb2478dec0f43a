// Package retry описывает явную политику повторов с экспоненциальной задержкой.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy: параметры повторов. Нулевые значения заменяются значениями Default.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter: доля случайного отклонения задержки, 0.25 дает ±25%
	Jitter float64
}

func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.25,
	}
}

// BackOff строит экспоненциальную задержку по параметрам политики.
// Время ожидания не ограничено, число попыток ограничивает Do.
func (p Policy) BackOff() *backoff.ExponentialBackOff {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delay возвращает паузу перед попыткой attempt+1 без случайного отклонения
func (p Policy) Delay(attempt int) time.Duration {
	p.Jitter = 0
	b := p.BackOff()
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Do вызывает fn, пока она не завершится успешно, ошибка не окажется
// неповторяемой, попытки не закончатся или не будет отменен ctx.
// retryable == nil считает повторяемой любую ошибку.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error, retryable func(error) bool) error {
	p = p.withDefaults()

	attempts := 0
	permanent := false
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err != nil && retryable != nil && !retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.BackOff(), uint64(p.MaxAttempts-1)), ctx)
	err := backoff.Retry(operation, b)
	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return fmt.Errorf("retry interrupted after %d attempts: %w", attempts, err)
	default:
		return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
	}
}

func (p Policy) withDefaults() Policy {
	def := Default()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}
