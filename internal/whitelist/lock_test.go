package whitelist

import (
	"sync"
	"time"
)

func (s *UnitTestSuite) TestKeyedMutexSerializesSameKey() {
	k := newKeyedMutex()
	unlock := k.Lock("u1")

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("u1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		s.Fail("second Lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired
}

func (s *UnitTestSuite) TestKeyedMutexIndependentKeys() {
	k := newKeyedMutex()
	unlock := k.Lock("u1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		k.Lock("u2")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("different keys must not block each other")
	}
}

func (s *UnitTestSuite) TestKeyedMutexForgetsIdleKeys() {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("u1")()
		}()
	}
	wg.Wait()
	s.Equal(0, k.size())
}
