package video

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCacheReadEmpty(t *testing.T) {
	cache := NewCache()

	if _, ok := cache.Read(); ok {
		t.Fatal("Read() on an empty cache reported a frame")
	}
}

func TestCacheLastWriteWins(t *testing.T) {
	cache := NewCache()

	for i := 0; i < 10; i++ {
		cache.Write(Frame{Data: []byte{byte(i)}, Timestamp: time.Now()})
	}

	frame, ok := cache.Read()
	if !ok {
		t.Fatal("Read() reported no frame after writes")
	}
	if frame.Data[0] != 9 {
		t.Errorf("Read() returned frame %d, want the last written (9)", frame.Data[0])
	}
}

func TestCacheConcurrentReadersAndWriter(t *testing.T) {
	cache := NewCache()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			// Every frame carries a self-consistent payload so readers can
			// detect a torn value.
			payload := []byte(fmt.Sprintf("%08d", i))
			cache.Write(Frame{Data: payload, Width: i, Height: i})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10000; i++ {
				frame, ok := cache.Read()
				if !ok {
					continue
				}
				if frame.Width != frame.Height {
					t.Errorf("torn frame observed: width=%d height=%d", frame.Width, frame.Height)
					return
				}
				if want := fmt.Sprintf("%08d", frame.Width); string(frame.Data) != want {
					t.Errorf("torn frame payload: got %q, want %q", frame.Data, want)
					return
				}
			}
		}()
	}

	// Let readers finish, then stop the writer.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	<-done
}
