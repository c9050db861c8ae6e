package refstore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition never became true")
}

func TestBrokerDeliversToExactMatch(t *testing.T) {
	b := NewBroker()
	var mu sync.Mutex
	var got []string
	id := b.Subscribe("widget", "prod", func(name, namespace string, old *string, newFingerprint string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, newFingerprint)
	})
	defer b.Unsubscribe(id)

	b.Publish("widget", "prod", nil, "fp1")
	b.Publish("widget", "staging", nil, "fp2") // different namespace, no match

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	assert.Equal(t, []string{"fp1"}, got)
	mu.Unlock()
}

func TestBrokerWildcardMatches(t *testing.T) {
	b := NewBroker()
	var mu sync.Mutex
	var got []string
	id := b.Subscribe(Wildcard, Wildcard, func(name, namespace string, old *string, newFingerprint string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, name+"/"+namespace)
	})
	defer b.Unsubscribe(id)

	b.Publish("a", "x", nil, "fp")
	b.Publish("b", "y", nil, "fp")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
}

func TestBrokerFIFOPerKey(t *testing.T) {
	b := NewBroker()
	var mu sync.Mutex
	var got []string
	id := b.Subscribe("widget", "", func(name, namespace string, old *string, newFingerprint string) {
		mu.Lock()
		got = append(got, newFingerprint)
		mu.Unlock()
	})
	defer b.Unsubscribe(id)

	for i := 0; i < 50; i++ {
		b.Publish("widget", "", nil, string(rune('a'+i%26)))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 50
	})

	want := make([]string, 50)
	for i := range want {
		want[i] = string(rune('a' + i%26))
	}
	mu.Lock()
	assert.Equal(t, want, got)
	mu.Unlock()
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	var mu sync.Mutex
	count := 0
	id := b.Subscribe("widget", "", func(name, namespace string, old *string, newFingerprint string) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.True(t, b.Unsubscribe(id))
	require.False(t, b.Unsubscribe(id))

	b.Publish("widget", "", nil, "fp")
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, count)
	mu.Unlock()
}

func TestBrokerPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := NewBroker()
	b.Publish("nobody", "listening", nil, "fp")
}
