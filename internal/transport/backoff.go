package transport

import (
	"math"
	"math/rand"
	"time"
)

// ReconnectPolicy параметры переподключения
type ReconnectPolicy struct {
	MaxAttempts  int           // Сколько раз пытаться подключиться подряд
	InitialDelay time.Duration // Пауза перед второй попыткой
	MaxDelay     time.Duration // Верхняя граница паузы
	Multiplier   float64       // Множитель экспоненциального роста
	Jitter       bool          // Случайный разброс ±20%
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// delay пауза после attempt неудачных попыток (attempt >= 1)
func (p ReconnectPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d += d * 0.2 * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
