package enricher

import "testing"

func TestEnrichPerformanceMessage(t *testing.T) {
	e := NewEnricher("")
	defer e.Close()

	msg := `{"entry":"Performance","type":"resource","name":"https://example.com/app.js","device":{"agent":"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"},"performance":{"duration":12}}`
	ev := e.Enrich("web", "prod", "00000000000000000001", msg, 1700000000000, "203.0.113.7")

	if ev.EventID == "" {
		t.Fatal("expected event id")
	}
	if ev.EntryType != "resource" || ev.Name != "https://example.com/app.js" {
		t.Fatalf("unexpected parsed fields %+v", ev)
	}
	if ev.DeviceType != "mobile" {
		t.Fatalf("expected mobile device, got %q", ev.DeviceType)
	}
	if ev.Browser == "" {
		t.Fatal("expected browser from user agent")
	}
	if ev.Message != msg || ev.Timestamp != 1700000000000 || ev.LogStream != "prod" {
		t.Fatalf("expected original message and timestamp to be preserved, got %+v", ev)
	}
	if ev.Country != "" {
		t.Fatalf("expected no country without GeoIP database, got %q", ev.Country)
	}
}

func TestEnrichOpaqueMessage(t *testing.T) {
	ev := NewEnricher("").Enrich("web", "prod", "", "plain text line", 1, "")
	if ev.EntryType != "" || ev.Browser != "" {
		t.Fatalf("expected opaque message to pass through, got %+v", ev)
	}
	if ev.Message != "plain text line" {
		t.Fatalf("unexpected message %q", ev.Message)
	}
}
