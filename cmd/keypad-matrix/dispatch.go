package main

import (
	"log"

	"github.com/sweeney/keypad-matrix/internal/logic"
	"github.com/sweeney/keypad-matrix/internal/mqtt"
	"github.com/sweeney/keypad-matrix/internal/status"
)

// dispatcher takes key events and due heartbeats off the drive loop and does
// everything that may block on the broker: tallying, status updates and
// publishing. It owns the tally and is the only caller of the publisher
// until it stops.
type dispatcher struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	network    func() *status.NetworkInfo
	tally      *logic.Tally
}

func newDispatcher(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, network func() *status.NetworkInfo) *dispatcher {
	return &dispatcher{
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		network:    network,
		tally:      logic.NewTally(),
	}
}

// run handles events and heartbeats until stop is closed, then handles
// whatever is already queued and returns.
func (d *dispatcher) run(events <-chan logic.Event, beats <-chan logic.HeartbeatData, stop <-chan struct{}) {
	for {
		select {
		case e := <-events:
			d.handleEvent(e)
		case hb := <-beats:
			d.handleHeartbeat(hb)
		case <-stop:
			for {
				select {
				case e := <-events:
					d.handleEvent(e)
				case hb := <-beats:
					d.handleHeartbeat(hb)
				default:
					return
				}
			}
		}
	}
}

func (d *dispatcher) handleEvent(e logic.Event) {
	log.Printf("event: %s key=%d (%d,%d)", e.Type, e.Key.ID, e.Key.Row, e.Key.Col)
	d.tally.Record(e)
	if d.tracker != nil {
		d.tracker.SetKey(e.Key.ID, e.State())
		d.tracker.SetCounts(d.tally.Snapshot())
	}
	if err := d.publisher.Publish(e); err != nil {
		log.Printf("publish error: %v", err)
	}
}

func (d *dispatcher) handleHeartbeat(hb logic.HeartbeatData) {
	hb.Counts = d.tally.Snapshot()
	presses, releases := hb.Counts.Total()
	log.Printf("heartbeat: uptime=%v presses=%d releases=%d", hb.Uptime, presses, releases)

	event := mqtt.SystemEvent{
		Timestamp: hb.Timestamp,
		Event:     "HEARTBEAT",
	}
	if d.tracker != nil {
		if d.mqttStatus != nil {
			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		}
		if d.network != nil {
			if net := d.network(); net != nil {
				d.tracker.SetNetwork(net)
			}
		}
		snap := d.tracker.Snapshot()
		event.BootID = snap.BootID
		event.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}
