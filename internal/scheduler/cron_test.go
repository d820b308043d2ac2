package scheduler

import (
	"testing"
	"time"
)

func TestEvery(t *testing.T) {
	if got := Every(time.Minute); got != "@every 1m0s" {
		t.Fatalf("unexpected spec: %s", got)
	}
}

func TestCronRunsAndRemoves(t *testing.T) {
	c := NewCron()
	defer c.Stop()

	fired := make(chan struct{}, 10)
	id, err := c.AddFunc(Every(time.Second), func() { fired <- struct{}{} })
	if err != nil {
		t.Fatalf("AddFunc: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not fire")
	}

	c.RemoveFunc(id)
	time.Sleep(100 * time.Millisecond)
	for len(fired) > 0 {
		<-fired
	}
	select {
	case <-fired:
		t.Fatalf("job fired after removal")
	case <-time.After(1500 * time.Millisecond):
	}
}

func TestCronRejectsBadSpec(t *testing.T) {
	c := NewCron()
	defer c.Stop()

	if _, err := c.AddFunc("not a spec", func() {}); err == nil {
		t.Fatalf("expected error for bad spec")
	}
}
