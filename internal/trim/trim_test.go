package trim

import "testing"

func TestStoppedReportsOpenChannelAsNotStopped(t *testing.T) {
	stop := make(chan struct{})
	if stopped(stop) {
		t.Error("open channel should not report stopped")
	}
}

func TestStoppedReportsClosedChannelAsStopped(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	if !stopped(stop) {
		t.Error("closed channel should report stopped")
	}
}
