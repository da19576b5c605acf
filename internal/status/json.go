package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	Keys          []KeyJSON    `json:"keys"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	BootID        string       `json:"boot_id"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Scan          ScanJSON     `json:"scan"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// KeyJSON is the JSON representation of one monitored key.
type KeyJSON struct {
	ID       int    `json:"id"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	State    string `json:"state"`
	Presses  int    `json:"presses"`
	Releases int    `json:"releases"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event totals across all keys.
type CountsJSON struct {
	Presses  int `json:"presses"`
	Releases int `json:"releases"`
}

// ScanJSON is the JSON representation of scan counters.
type ScanJSON struct {
	Passes      uint64 `json:"passes"`
	ReadFaults  uint64 `json:"read_faults"`
	WriteFaults uint64 `json:"write_faults"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Rows         int    `json:"rows"`
	Cols         int    `json:"cols"`
	ScanPeriodMs int64  `json:"scan_period_ms"`
	SettleUs     int64  `json:"settle_us"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
	HTTPPort     string `json:"http_port"`
	WSBroker     string `json:"ws_broker,omitempty"`
}

// KeysJSON is the compact per-key view served for polling clients.
type KeysJSON struct {
	Ready bool      `json:"ready"`
	Keys  []KeyJSON `json:"keys"`
}

func buildKeys(snap Snapshot) []KeyJSON {
	keys := make([]KeyJSON, len(snap.Keys))
	for i, ks := range snap.Keys {
		state := string(ks.State)
		if state == "" {
			state = "UNKNOWN"
		}
		kc := snap.Counts[ks.Key.ID]
		keys[i] = KeyJSON{
			ID:       int(ks.Key.ID),
			Row:      ks.Key.Row,
			Col:      ks.Key.Col,
			State:    state,
			Presses:  kc.Presses,
			Releases: kc.Releases,
		}
	}
	return keys
}

func buildInner(snap Snapshot) StatusInner {
	presses, releases := snap.Counts.Total()

	inner := StatusInner{
		Ready:         snap.Ready,
		Keys:          buildKeys(snap),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		BootID:        snap.BootID,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{Presses: presses, Releases: releases},
		Scan: ScanJSON{
			Passes:      snap.Scan.Passes,
			ReadFaults:  snap.Scan.ReadFaults,
			WriteFaults: snap.Scan.WriteFaults,
		},
		Config: ConfigJSON{
			Rows:         snap.Config.Rows,
			Cols:         snap.Config.Cols,
			ScanPeriodMs: snap.Config.ScanPeriodMs,
			SettleUs:     snap.Config.SettleUs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPPort:     snap.Config.HTTPPort,
			WSBroker:     snap.Config.WSBroker,
		},
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatKeysJSON returns only readiness and the per-key states and counts.
func FormatKeysJSON(snap Snapshot) []byte {
	data, _ := json.Marshal(KeysJSON{Ready: snap.Ready, Keys: buildKeys(snap)})
	return data
}
