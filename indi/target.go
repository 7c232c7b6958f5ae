package indi

// ElementTarget extracts the (device, vector) pair an Element addresses,
// used by the server router to evaluate BLOB policy and ownership
// without re-parsing the wire struct at each call site.
func ElementTarget(el Element) (device, vector string) {
	switch v := el.Value.(type) {
	case *wireGetProperties:
		return v.Device, v.Name
	case *wireEnableBlob:
		return v.Device, v.Name
	case *wireDefTextVector:
		return v.Device, v.Name
	case *wireDefNumberVector:
		return v.Device, v.Name
	case *wireDefSwitchVector:
		return v.Device, v.Name
	case *wireDefLightVector:
		return v.Device, v.Name
	case *wireDefBlobVector:
		return v.Device, v.Name
	case *wireNewTextVector:
		return v.Device, v.Name
	case *wireNewNumberVector:
		return v.Device, v.Name
	case *wireNewSwitchVector:
		return v.Device, v.Name
	case *wireNewBlobVector:
		return v.Device, v.Name
	case *wireSetTextVector:
		return v.Device, v.Name
	case *wireSetNumberVector:
		return v.Device, v.Name
	case *wireSetSwitchVector:
		return v.Device, v.Name
	case *wireSetLightVector:
		return v.Device, v.Name
	case *wireSetBlobVector:
		return v.Device, v.Name
	case *wireMessage:
		return v.Device, ""
	case *wireDelProperty:
		return v.Device, v.Name
	}
	return "", ""
}
