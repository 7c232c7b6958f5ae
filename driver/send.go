package driver

import (
	"github.com/astrogo/indiserver/indi"
)

func vectorKey(device, vector string) string { return device + "/" + vector }

// SendDefVector emits a defXxxVector for v. Use it after constructing a
// device's vectors, or to redefine one after re-enabling it.
func (d *Driver) SendDefVector(v *indi.Vector) {
	d.publish(v.Device.Name, v.Name, indi.BuildDefElement(v, d.readBlobPayloads(v)))
	d.recordSent(v)
}

// SendSetVector transmits a setXxxVector for v. When allValues is false
// (the common case), only members whose value changed since the last
// transmission of this vector are included; if no member value changed,
// nothing is sent at all, even when state or timeout changed -- use
// SendSetVectorMembers(v, nil) to force a metadata-only transmission.
func (d *Driver) SendSetVector(v *indi.Vector, allValues bool) {
	if allValues {
		d.publish(v.Device.Name, v.Name, indi.BuildSetElement(v, nil, d.readBlobPayloads(v)))
		d.recordSent(v)
		return
	}

	changed := d.changedMembers(v)
	if len(changed) == 0 {
		return
	}

	d.publish(v.Device.Name, v.Name, indi.BuildSetElement(v, changed, d.readBlobPayloads(v)))
	d.recordSent(v)
}

// SendSetVectorMembers transmits a setXxxVector restricted to members,
// unconditionally -- this is the only BLOB-capable send path, and its
// members=nil/empty form emits the envelope with no member children,
// forcing a metadata-only (state/message/timeout) transmission.
func (d *Driver) SendSetVectorMembers(v *indi.Vector, members []string) {
	if len(members) == 0 {
		// A member-less vector with v's identity and metadata renders as
		// the bare envelope.
		envelope := indi.NewVector(v.Kind, v.Name, v.Label, v.Group, v.State, v.Perm)
		envelope.Device = v.Device
		envelope.Timeout = v.Timeout
		envelope.Timestamp = v.Timestamp
		d.publish(v.Device.Name, v.Name, indi.BuildSetElement(envelope, nil, nil))
		d.recordSent(v)
		return
	}
	d.publish(v.Device.Name, v.Name, indi.BuildSetElement(v, members, d.readBlobPayloads(v)))
	d.recordSent(v)
}

func (d *Driver) changedMembers(v *indi.Vector) []string {
	key := vectorKey(v.Device.Name, v.Name)
	current := v.Snapshot()

	d.sentMu.Lock()
	last, ok := d.sentVals[key]
	d.sentMu.Unlock()

	var changed []string
	for name, val := range current {
		if !ok || last[name] != val {
			changed = append(changed, name)
		}
	}
	return changed
}

func (d *Driver) recordSent(v *indi.Vector) {
	key := vectorKey(v.Device.Name, v.Name)
	d.sentMu.Lock()
	d.sentVals[key] = v.Snapshot()
	d.sentMu.Unlock()
}

// SendDelProperty disables device (and all its vectors) or, if vector is
// non-empty, just that vector, and emits delProperty for it.
func (d *Driver) SendDelProperty(device, vector string) {
	if dev, ok := d.devices[device]; ok {
		if vector == "" {
			dev.Disable()
			for _, v := range dev.Vectors() {
				v.Enable = false
			}
		} else {
			dev.DisableVector(vector)
		}
	}
	d.publish(device, vector, indi.BuildDelPropertyElement(device, vector))
}

// SendMessage emits a system-wide message (device empty) or a
// device-scoped one.
func (d *Driver) SendMessage(device, text string) {
	d.publish(device, "", indi.BuildMessageElement(device, text))
}

// SendGetProperties issues a getProperties request for device[/vector],
// recording it as this driver's own snoop subscription unless it targets
// one of the driver's own devices, which is refused silently.
func (d *Driver) SendGetProperties(device, vector string) {
	if device != "" && d.OwnsDevice(device) {
		if d.log != nil {
			d.log.WithField("device", device).Warn("driver: refusing to snoop own device")
		}
		return
	}

	d.recordSnoopSubscription(device, vector)

	el := indi.BuildGetPropertiesElement(device, vector)
	d.publish(device, vector, el)
	if d.sink != nil {
		d.sink.Subscribe(device, vector)
	}
}

func (d *Driver) recordSnoopSubscription(device, vector string) {
	d.snoopMu.Lock()
	defer d.snoopMu.Unlock()

	switch {
	case device == "":
		d.snoopAll = true
	case vector == "":
		d.snoopDevices[device] = true
	default:
		d.snoopVectors[vectorKey(device, vector)] = true
	}
}

// MatchesSnoop reports whether this driver has subscribed to traffic for
// device[/vector], used by the server router to decide snoop fan-out.
func (d *Driver) MatchesSnoop(device, vector string) bool {
	d.snoopMu.Lock()
	defer d.snoopMu.Unlock()

	if d.snoopAll {
		return true
	}
	if d.snoopDevices[device] {
		return true
	}
	return d.snoopVectors[vectorKey(device, vector)]
}
