package service

import (
	"sync/atomic"
	"time"
)

type atomicTime struct {
	v atomic.Pointer[time.Time]
}

func (a *atomicTime) Store(t time.Time) {
	a.v.Store(&t)
}

func (a *atomicTime) Load() *time.Time {
	p := a.v.Load()
	if p == nil {
		return nil
	}
	t := *p
	return &t
}
