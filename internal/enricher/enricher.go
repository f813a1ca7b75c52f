package enricher

import (
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
)

type Enricher struct {
	geoIP *geoip2.Reader
}

func NewEnricher(geoIPPath string) *Enricher {
	// Try to load GeoIP database
	var geoIP *geoip2.Reader
	if geoIPPath != "" {
		geoIP, _ = geoip2.Open(geoIPPath)
	}

	return &Enricher{
		geoIP: geoIP,
	}
}

// ForwardedEvent is one accepted log event as published to Kafka.
type ForwardedEvent struct {
	EventID       string `json:"event_id"`
	LogGroup      string `json:"log_group"`
	LogStream     string `json:"log_stream"`
	SequenceToken string `json:"sequence_token"`
	Timestamp     int64  `json:"timestamp"`
	Message       string `json:"message"`

	// Parsed from the message when it is a performance entry
	EntryType string `json:"entry_type,omitempty"`
	Name      string `json:"name,omitempty"`

	// Enriched fields
	ServerTimestamp int64  `json:"server_timestamp"`
	Browser         string `json:"browser,omitempty"`
	BrowserVersion  string `json:"browser_version,omitempty"`
	OS              string `json:"os,omitempty"`
	DeviceType      string `json:"device_type,omitempty"`
	Country         string `json:"country,omitempty"`
	City            string `json:"city,omitempty"`
	ClientIP        string `json:"client_ip,omitempty"`
}

type performanceMessage struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Device struct {
		Agent string `json:"agent"`
	} `json:"device"`
}

// Enrich decorates one accepted message. Messages that are not JSON
// performance entries are forwarded untouched.
func (e *Enricher) Enrich(group, stream, token, message string, timestamp int64, clientIP string) *ForwardedEvent {
	enriched := &ForwardedEvent{
		EventID:         uuid.New().String(),
		LogGroup:        group,
		LogStream:       stream,
		SequenceToken:   token,
		Timestamp:       timestamp,
		Message:         message,
		ServerTimestamp: time.Now().UnixMilli(),
		ClientIP:        clientIP,
	}

	var perf performanceMessage
	if err := json.Unmarshal([]byte(message), &perf); err == nil {
		enriched.EntryType = perf.Type
		enriched.Name = perf.Name

		// Parse user agent
		if perf.Device.Agent != "" {
			ua := useragent.New(perf.Device.Agent)
			enriched.Browser, enriched.BrowserVersion = ua.Browser()
			enriched.OS = ua.OS()
			enriched.DeviceType = getDeviceType(ua)
		}
	}

	// GeoIP lookup
	if e.geoIP != nil && clientIP != "" {
		if ip := net.ParseIP(clientIP); ip != nil {
			record, err := e.geoIP.City(ip)
			if err == nil {
				enriched.Country = record.Country.IsoCode
				if name, ok := record.City.Names["en"]; ok {
					enriched.City = name
				}
			}
		}
	}

	return enriched
}

func getDeviceType(ua *useragent.UserAgent) string {
	if ua.Mobile() {
		return "mobile"
	}
	if ua.Bot() {
		return "bot"
	}
	return "desktop"
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
