package indi

import "encoding/xml"

// This file is the wire encoding of every INDI v1.7 top-level element:
// def/set/one shapes for each property kind plus getProperties,
// enableBLOB and new*Vector, since this module speaks both directions of
// the protocol instead of only the client-to-server direction.

// wireGetProperties is the client/peer discovery request.
type wireGetProperties struct {
	XMLName xml.Name `xml:"getProperties"`
	Version string   `xml:"version,attr"`
	Device  string   `xml:"device,attr,omitempty"`
	Name    string   `xml:"name,attr,omitempty"`
}

// wireEnableBlob controls whether BLOB traffic is sent to the sender's connection.
type wireEnableBlob struct {
	XMLName xml.Name   `xml:"enableBLOB"`
	Device  string     `xml:"device,attr"`
	Name    string     `xml:"name,attr,omitempty"`
	Value   BlobEnable `xml:",chardata"`
}

// wireDefTextVector defines a property that holds one or more text elements.
type wireDefTextVector struct {
	XMLName   xml.Name   `xml:"defTextVector"`
	Device    string     `xml:"device,attr"`
	Name      string     `xml:"name,attr"`
	Label     string     `xml:"label,attr,omitempty"`
	Group     string     `xml:"group,attr,omitempty"`
	State     PropertyState `xml:"state,attr"`
	Perm      Permission `xml:"perm,attr"`
	Timeout   *float64   `xml:"timeout,attr,omitempty"`
	Timestamp string     `xml:"timestamp,attr,omitempty"`
	Message   string     `xml:"message,attr,omitempty"`
	Texts     []wireDefText `xml:"defText"`
}

type wireDefText struct {
	XMLName xml.Name `xml:"defText"`
	Name    string   `xml:"name,attr"`
	Label   string   `xml:"label,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

type wireDefNumberVector struct {
	XMLName   xml.Name        `xml:"defNumberVector"`
	Device    string          `xml:"device,attr"`
	Name      string          `xml:"name,attr"`
	Label     string          `xml:"label,attr,omitempty"`
	Group     string          `xml:"group,attr,omitempty"`
	State     PropertyState   `xml:"state,attr"`
	Perm      Permission      `xml:"perm,attr"`
	Timeout   *float64        `xml:"timeout,attr,omitempty"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Message   string          `xml:"message,attr,omitempty"`
	Numbers   []wireDefNumber `xml:"defNumber"`
}

type wireDefNumber struct {
	XMLName xml.Name `xml:"defNumber"`
	Name    string   `xml:"name,attr"`
	Label   string   `xml:"label,attr,omitempty"`
	Format  string   `xml:"format,attr"`
	Min     string   `xml:"min,attr"`
	Max     string   `xml:"max,attr"`
	Step    string   `xml:"step,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

type wireDefSwitchVector struct {
	XMLName   xml.Name        `xml:"defSwitchVector"`
	Device    string          `xml:"device,attr"`
	Name      string          `xml:"name,attr"`
	Label     string          `xml:"label,attr,omitempty"`
	Group     string          `xml:"group,attr,omitempty"`
	State     PropertyState   `xml:"state,attr"`
	Perm      Permission      `xml:"perm,attr"`
	Rule      SwitchRule      `xml:"rule,attr"`
	Timeout   *float64        `xml:"timeout,attr,omitempty"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Message   string          `xml:"message,attr,omitempty"`
	Switches  []wireDefSwitch `xml:"defSwitch"`
}

type wireDefSwitch struct {
	XMLName xml.Name    `xml:"defSwitch"`
	Name    string      `xml:"name,attr"`
	Label   string      `xml:"label,attr,omitempty"`
	Value   SwitchState `xml:",chardata"`
}

type wireDefLightVector struct {
	XMLName   xml.Name       `xml:"defLightVector"`
	Device    string         `xml:"device,attr"`
	Name      string         `xml:"name,attr"`
	Label     string         `xml:"label,attr,omitempty"`
	Group     string         `xml:"group,attr,omitempty"`
	State     PropertyState  `xml:"state,attr"`
	Timestamp string         `xml:"timestamp,attr,omitempty"`
	Message   string         `xml:"message,attr,omitempty"`
	Lights    []wireDefLight `xml:"defLight"`
}

type wireDefLight struct {
	XMLName xml.Name      `xml:"defLight"`
	Name    string        `xml:"name,attr"`
	Label   string        `xml:"label,attr,omitempty"`
	Value   PropertyState `xml:",chardata"`
}

type wireDefBlobVector struct {
	XMLName   xml.Name      `xml:"defBLOBVector"`
	Device    string        `xml:"device,attr"`
	Name      string        `xml:"name,attr"`
	Label     string        `xml:"label,attr,omitempty"`
	Group     string        `xml:"group,attr,omitempty"`
	State     PropertyState `xml:"state,attr"`
	Perm      Permission    `xml:"perm,attr"`
	Timeout   *float64      `xml:"timeout,attr,omitempty"`
	Timestamp string        `xml:"timestamp,attr,omitempty"`
	Message   string        `xml:"message,attr,omitempty"`
	Blobs     []wireDefBlob `xml:"defBLOB"`
}

type wireDefBlob struct {
	XMLName xml.Name `xml:"defBLOB"`
	Name    string   `xml:"name,attr"`
	Label   string   `xml:"label,attr,omitempty"`
}

type wireNewTextVector struct {
	XMLName   xml.Name      `xml:"newTextVector"`
	Device    string        `xml:"device,attr"`
	Name      string        `xml:"name,attr"`
	Timestamp string        `xml:"timestamp,attr,omitempty"`
	Texts     []wireOneText `xml:"oneText"`
}

type wireNewNumberVector struct {
	XMLName   xml.Name        `xml:"newNumberVector"`
	Device    string          `xml:"device,attr"`
	Name      string          `xml:"name,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Numbers   []wireOneNumber `xml:"oneNumber"`
}

type wireNewSwitchVector struct {
	XMLName   xml.Name        `xml:"newSwitchVector"`
	Device    string          `xml:"device,attr"`
	Name      string          `xml:"name,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Switches  []wireOneSwitch `xml:"oneSwitch"`
}

type wireNewBlobVector struct {
	XMLName   xml.Name      `xml:"newBLOBVector"`
	Device    string        `xml:"device,attr"`
	Name      string        `xml:"name,attr"`
	Timestamp string        `xml:"timestamp,attr,omitempty"`
	Blobs     []wireOneBlob `xml:"oneBLOB"`
}

type wireOneText struct {
	XMLName xml.Name `xml:"oneText"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:",chardata"`
}

type wireOneNumber struct {
	XMLName xml.Name `xml:"oneNumber"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:",chardata"`
}

type wireOneSwitch struct {
	XMLName xml.Name    `xml:"oneSwitch"`
	Name    string      `xml:"name,attr"`
	Value   SwitchState `xml:",chardata"`
}

type wireOneLight struct {
	XMLName xml.Name      `xml:"oneLight"`
	Name    string        `xml:"name,attr"`
	Value   PropertyState `xml:",chardata"`
}

// wireOneBlob carries a base64-encoded payload plus a format hint (file
// extension) and the declared uncompressed size.
type wireOneBlob struct {
	XMLName xml.Name `xml:"oneBLOB"`
	Name    string   `xml:"name,attr"`
	Size    int64    `xml:"size,attr"`
	Format  string   `xml:"format,attr"`
	Value   string   `xml:",chardata"`
}

type wireSetTextVector struct {
	XMLName   xml.Name      `xml:"setTextVector"`
	Device    string        `xml:"device,attr"`
	Name      string        `xml:"name,attr"`
	State     PropertyState `xml:"state,attr"`
	Timeout   *float64      `xml:"timeout,attr,omitempty"`
	Timestamp string        `xml:"timestamp,attr,omitempty"`
	Message   string        `xml:"message,attr,omitempty"`
	Texts     []wireOneText `xml:"oneText"`
}

type wireSetNumberVector struct {
	XMLName   xml.Name        `xml:"setNumberVector"`
	Device    string          `xml:"device,attr"`
	Name      string          `xml:"name,attr"`
	State     PropertyState   `xml:"state,attr"`
	Timeout   *float64        `xml:"timeout,attr,omitempty"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Message   string          `xml:"message,attr,omitempty"`
	Numbers   []wireOneNumber `xml:"oneNumber"`
}

type wireSetSwitchVector struct {
	XMLName   xml.Name        `xml:"setSwitchVector"`
	Device    string          `xml:"device,attr"`
	Name      string          `xml:"name,attr"`
	State     PropertyState   `xml:"state,attr"`
	Timeout   *float64        `xml:"timeout,attr,omitempty"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Message   string          `xml:"message,attr,omitempty"`
	Switches  []wireOneSwitch `xml:"oneSwitch"`
}

type wireSetLightVector struct {
	XMLName   xml.Name       `xml:"setLightVector"`
	Device    string         `xml:"device,attr"`
	Name      string         `xml:"name,attr"`
	State     PropertyState  `xml:"state,attr"`
	Timestamp string         `xml:"timestamp,attr,omitempty"`
	Message   string         `xml:"message,attr,omitempty"`
	Lights    []wireOneLight `xml:"oneLight"`
}

type wireSetBlobVector struct {
	XMLName   xml.Name      `xml:"setBLOBVector"`
	Device    string        `xml:"device,attr"`
	Name      string        `xml:"name,attr"`
	State     PropertyState `xml:"state,attr"`
	Timeout   *float64      `xml:"timeout,attr,omitempty"`
	Timestamp string        `xml:"timestamp,attr,omitempty"`
	Message   string        `xml:"message,attr,omitempty"`
	Blobs     []wireOneBlob `xml:"oneBLOB"`
}

// wireMessage carries a message associated with a device, or the system as a whole.
type wireMessage struct {
	XMLName   xml.Name `xml:"message"`
	Device    string   `xml:"device,attr,omitempty"`
	Timestamp string   `xml:"timestamp,attr,omitempty"`
	Message   string   `xml:"message,attr"`
}

// wireDelProperty deletes the given vector, or the entire device if Name is empty.
type wireDelProperty struct {
	XMLName   xml.Name `xml:"delProperty"`
	Device    string   `xml:"device,attr"`
	Name      string   `xml:"name,attr,omitempty"`
	Timestamp string   `xml:"timestamp,attr,omitempty"`
	Message   string   `xml:"message,attr,omitempty"`
}
