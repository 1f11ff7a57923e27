package util

import (
	"time"

	"github.com/pkg/errors"
)

// Lazy 是一次性的数据交接点：一方Store，另一方在限定时间内Take。
// 未被取走的数据会被新的Store覆盖。
type Lazy interface {
	Store(p interface{})
	Take(timeout time.Duration) (v interface{}, err error)
	// Reset 丢弃尚未被取走的数据
	Reset()
}

////

var ErrTakeTimeout = errors.New("take value timeout")

func NewLazy() Lazy {
	return &lazy{
		ch: make(chan interface{}, 1),
	}
}

type lazy struct {
	ch chan interface{}
}

func (l *lazy) Store(p interface{}) {
	for {
		select {
		case l.ch <- p:
			return
		default:
			l.Reset()
		}
	}
}

func (l *lazy) Take(timeout time.Duration) (v interface{}, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil, ErrTakeTimeout

	case v := <-l.ch:
		return v, nil
	}
}

func (l *lazy) Reset() {
	select {
	case <-l.ch:
	default:
	}
}
