package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/hwinterop/internal/api/models"
	"github.com/smazurov/hwinterop/internal/events"
)

type sseMessage struct{ event, data string }

// openStream connects to /api/events and returns the parsed messages.
func openStream(t *testing.T, url string, timeout time.Duration) <-chan sseMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect to SSE: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %s", ct)
	}

	messages := make(chan sseMessage, 16)
	go func() {
		defer close(messages)
		scanner := bufio.NewScanner(resp.Body)
		var m sseMessage
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				m.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				m.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && m.data != "":
				messages <- m
				m = sseMessage{}
			}
		}
	}()
	return messages
}

func nextMessage(t *testing.T, messages <-chan sseMessage) sseMessage {
	t.Helper()
	select {
	case m, ok := <-messages:
		if !ok {
			t.Fatal("event stream closed")
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return sseMessage{}
}

func TestEventStream(t *testing.T) {
	bus := events.New()
	ts := newTestServer(t, &Options{EventBus: bus, Devices: testDevices()})
	messages := openStream(t, ts.URL, 5*time.Second)

	m := nextMessage(t, messages)
	if m.event != "connected" {
		t.Fatalf("first event = %q, want connected", m.event)
	}
	var hello models.ConnectedEventData
	if err := json.Unmarshal([]byte(m.data), &hello); err != nil {
		t.Fatalf("data %q: %v", m.data, err)
	}
	if hello.Devices != len(testDevices().List()) {
		t.Errorf("devices = %d", hello.Devices)
	}

	// the handler subscribed before sending connected
	bus.Publish(events.DeviceAttachedEvent{DeviceID: "renderD128", Driver: "vaapi", Formats: []string{"nv12"}})

	m = nextMessage(t, messages)
	if m.event != "device-attached" {
		t.Fatalf("event = %q, want device-attached", m.event)
	}
	var got events.DeviceAttachedEvent
	if err := json.Unmarshal([]byte(m.data), &got); err != nil {
		t.Fatalf("data %q: %v", m.data, err)
	}
	if got.DeviceID != "renderD128" || len(got.Formats) != 1 {
		t.Errorf("event = %+v", got)
	}
}

func TestEventStreamIdleBus(t *testing.T) {
	ts := newTestServer(t, &Options{EventBus: events.New()})
	// headers and the first event arrive although nothing is published
	messages := openStream(t, ts.URL, time.Second)
	if m := nextMessage(t, messages); m.event != "connected" {
		t.Errorf("event = %q, want connected", m.event)
	}
}

func TestEventStreamWithoutBus(t *testing.T) {
	ts := newTestServer(t, &Options{})
	messages := openStream(t, ts.URL, time.Second)
	if m := nextMessage(t, messages); m.event != "connected" {
		t.Errorf("event = %q, want connected", m.event)
	}
}
