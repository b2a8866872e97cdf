package chat

import (
	"encoding/json"
	"time"
)

// Position is a device geolocation fix. Accuracy is nil when unknown.
type Position struct {
	Lat      float64
	Lng      float64
	Accuracy *float64
}

// GeoPayload is the JSON document carried as the content of NEW_GEO messages.
type GeoPayload struct {
	Type     string   `json:"type"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy"`
	TS       int64    `json:"ts"`
}

// EncodeGeo renders pos as the string content of a NEW_GEO message.
// The payload stays a JSON string on the wire, never a structured field.
func EncodeGeo(pos Position, now time.Time) (string, error) {
	b, err := json.Marshal(GeoPayload{
		Type:     "geo",
		Lat:      pos.Lat,
		Lng:      pos.Lng,
		Accuracy: pos.Accuracy,
		TS:       now.UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeGeo parses the content of a NEW_GEO message.
func DecodeGeo(content string) (GeoPayload, error) {
	var p GeoPayload
	err := json.Unmarshal([]byte(content), &p)
	return p, err
}
