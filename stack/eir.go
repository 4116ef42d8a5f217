package stack

// EIR data types.
const (
	EIRShortLocalName    byte = 0x08
	EIRCompleteLocalName byte = 0x09
)

// FindEIR returns the value of the first record of the given type within
// extended inquiry response data, or false if there is no such record.
//
// EIR data is a sequence of records, each made of a length byte followed by
// a type byte and length-1 bytes of value. A zero length ends the data.
func FindEIR(eir []byte, recordType byte) ([]byte, bool) {
	for len(eir) > 0 {
		length := int(eir[0])
		if length == 0 || length >= len(eir) {
			break
		}

		record := eir[1 : length+1]
		if record[0] == recordType {
			return record[1:], true
		}

		eir = eir[length+1:]
	}

	return nil, false
}

// ResolveEIRName returns the device name advertised in EIR data.
// The complete local name is preferred over the shortened one, and the name
// is truncated to MaxNameLength bytes.
func ResolveEIRName(eir []byte) ([]byte, bool) {
	name, ok := FindEIR(eir, EIRCompleteLocalName)
	if !ok {
		name, ok = FindEIR(eir, EIRShortLocalName)
	}
	if !ok {
		return nil, false
	}

	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}

	return name, true
}

// AppendEIR appends a single EIR record to eir.
// Values longer than 254 bytes are truncated.
func AppendEIR(eir []byte, recordType byte, value []byte) []byte {
	if len(value) > 254 {
		value = value[:254]
	}

	eir = append(eir, byte(len(value)+1), recordType)

	return append(eir, value...)
}

// ResolveName returns the device name of a discovery result, taken from
// its EIR property.
func (d DiscoveryResult) ResolveName() ([]byte, bool) {
	for _, prop := range d.Properties {
		if prop.Type != PropertyEIR {
			continue
		}

		if name, ok := ResolveEIRName(prop.Value); ok {
			return name, true
		}
	}

	return nil, false
}
