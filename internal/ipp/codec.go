package ipp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Operation identifies an IPP operation-id used on the request side.
type Operation uint16

const (
	OpPrintJob                       Operation = 0x0002
	OpGetJobAttributes                Operation = 0x0009
	OpGetPrinterAttributes            Operation = 0x000B
	OpCancelJob                        Operation = 0x0008
	OpCreateJob                        Operation = 0x0005
	OpSendDocument                     Operation = 0x0006
	OpGetJobs                          Operation = 0x000A
	OpCreatePrinterSubscriptions       Operation = 0x0016
	OpCancelSubscription               Operation = 0x0018
	OpGetNotifications                 Operation = 0x0019
	OpRegisterOutputDevice             Operation = 0x0030
	OpUpdateOutputDeviceAttributes     Operation = 0x0031
	OpDeregisterOutputDevice           Operation = 0x003D
	OpAcknowledgeJob                   Operation = 0x0032
	OpFetchDocument                    Operation = 0x0033
	OpAcknowledgeDocument              Operation = 0x0034
	OpFetchJob                         Operation = 0x0035
	OpUpdateJobStatus                  Operation = 0x0036
	OpUpdateDocumentStatus             Operation = 0x0037
	OpAcknowledgeIdentifyPrinter       Operation = 0x0039
)

// Status is the IPP status-code returned in a response.
type Status uint16

const (
	StatusOK                     Status = 0x0000
	StatusOKIgnoredOrSubstituted Status = 0x0001
	StatusClientErrorBadRequest  Status = 0x0400
	StatusClientErrorNotFound    Status = 0x0406
	StatusClientErrorNotFetchable Status = 0x0409
)

// IsError reports whether the status represents a failed operation (status
// class >= client-error, i.e. >= 0x0400), matching §7's "Protocol-level
// error (IPP status >= client-error-bad-request)" rule.
func (s Status) IsError() bool { return s >= StatusClientErrorBadRequest }

// NotFetchable reports whether the status is the well-known client-error
// that means "some other output device already claimed this job" (§4.6,
// §7 "not-fetchable").
func (s Status) NotFetchable() bool { return s == StatusClientErrorNotFetchable }

// Message is a full IPP request or response: version, operation-id (request)
// or status-code (response), request-id, attribute groups, and optional
// trailing document data.
type Message struct {
	VersionMajor, VersionMinor byte
	OpOrStatus                 uint16
	RequestID                  int32
	Groups                     []AttributeGroup
	Data                       []byte
}

func NewRequest(op Operation, requestID int32) *Message {
	return &Message{VersionMajor: 2, VersionMinor: 0, OpOrStatus: uint16(op), RequestID: requestID}
}

// Operation group attributes shared by nearly every request this proxy
// issues (§6: "Every infrastructure-bound request carries printer-uri,
// output-device-uuid, and requesting-user-name").
func (m *Message) AddOperationGroup(attrs ...Attribute) {
	m.addToGroup(GroupOperation, attrs)
}

func (m *Message) AddJobGroup(attrs ...Attribute) {
	m.addToGroup(GroupJob, attrs)
}

func (m *Message) addToGroup(tag GroupTag, attrs []Attribute) {
	for i := range m.Groups {
		if m.Groups[i].Tag == tag {
			m.Groups[i].Attributes = append(m.Groups[i].Attributes, attrs...)
			return
		}
	}
	m.Groups = append(m.Groups, AttributeGroup{Tag: tag, Attributes: attrs})
}

// Status extracts the response status-code. Only meaningful on a decoded
// response message.
func (m *Message) Status() Status { return Status(m.OpOrStatus) }

// AttrSet flattens every non-operation group into one AttributeSet, the
// shape C1/C3/C4 consume.
func (m *Message) AttrSet() AttributeSet {
	return FromGroups(m.Groups, GroupOperation)
}

// Find returns the first attribute with the given name across all groups.
func (m *Message) Find(name string) (Attribute, bool) {
	for _, g := range m.Groups {
		for _, a := range g.Attributes {
			if a.Name == name {
				return a, true
			}
		}
	}
	return Attribute{}, false
}

// Encode writes the binary RFC 8010 representation of m to w.
func Encode(w io.Writer, m *Message) error {
	buf := &bytes.Buffer{}
	buf.WriteByte(m.VersionMajor)
	buf.WriteByte(m.VersionMinor)
	binary.Write(buf, binary.BigEndian, m.OpOrStatus)
	binary.Write(buf, binary.BigEndian, m.RequestID)

	for _, g := range m.Groups {
		buf.WriteByte(byte(g.Tag))
		for _, a := range g.Attributes {
			if err := encodeAttribute(buf, a); err != nil {
				return err
			}
		}
	}
	buf.WriteByte(byte(GroupEndOfAttributes))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	if len(m.Data) > 0 {
		_, err := w.Write(m.Data)
		return err
	}
	return nil
}

func encodeAttribute(buf *bytes.Buffer, a Attribute) error {
	if len(a.Values) == 0 {
		return nil
	}
	for i, v := range a.Values {
		wt := valueTagToWireTag(v.Tag)
		buf.WriteByte(byte(wt))
		name := a.Name
		if i > 0 {
			// Additional values of a multi-valued attribute carry a
			// zero-length name per RFC 8010 §3.1.3.
			name = ""
		}
		writeWireString(buf, name)
		if err := encodeValue(buf, v, wt); err != nil {
			return err
		}
	}
	return nil
}

func encodeValue(buf *bytes.Buffer, v Value, wt wireTag) error {
	switch v.Tag {
	case TagInteger, TagEnum:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v.Int))
		writeWireBytes(buf, b)
	case TagBoolean:
		val := byte(0)
		if v.Bool {
			val = 1
		}
		writeWireBytes(buf, []byte{val})
	case TagKeyword, TagText, TagURI:
		writeWireString(buf, v.String)
	case TagResolution:
		b := make([]byte, 9)
		binary.BigEndian.PutUint32(b[0:4], uint32(v.Resolution.X))
		binary.BigEndian.PutUint32(b[4:8], uint32(v.Resolution.Y))
		b[8] = byte(v.Resolution.Units)
		writeWireBytes(buf, b)
	case TagCollection:
		// begin-collection carries a zero-length value; members follow as
		// memberAttrName/value pairs terminated by end-collection.
		writeWireBytes(buf, nil)
		for _, m := range v.Collection {
			for _, mv := range m.Values {
				buf.WriteByte(byte(wireMemberAttrName))
				writeWireString(buf, "")
				writeWireString(buf, m.Name)
				mwt := valueTagToWireTag(mv.Tag)
				buf.WriteByte(byte(mwt))
				writeWireString(buf, "")
				if err := encodeValue(buf, mv, mwt); err != nil {
					return err
				}
			}
		}
		buf.WriteByte(byte(wireEndCollection))
		writeWireString(buf, "")
		writeWireBytes(buf, nil)
	default:
		writeWireBytes(buf, nil)
	}
	return nil
}

func writeWireString(buf *bytes.Buffer, s string) {
	writeWireBytes(buf, []byte(s))
}

func writeWireBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint16(len(b)))
	buf.Write(b)
}

// Decode reads a binary RFC 8010 message from r. Trailing bytes after the
// end-of-attributes tag (document data, if any) are returned as Data.
func Decode(r io.Reader) (*Message, error) {
	br := bufReader{r}
	m := &Message{}

	var err error
	if m.VersionMajor, err = br.byte(); err != nil {
		return nil, err
	}
	if m.VersionMinor, err = br.byte(); err != nil {
		return nil, err
	}
	var opStatus uint16
	if err = binary.Read(br, binary.BigEndian, &opStatus); err != nil {
		return nil, err
	}
	m.OpOrStatus = opStatus
	if err = binary.Read(br, binary.BigEndian, &m.RequestID); err != nil {
		return nil, err
	}

	var cur *AttributeGroup
	for {
		tagByte, err := br.byte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if tagByte == byte(GroupEndOfAttributes) {
			break
		}
		if tagByte <= 0x0f || (tagByte >= byte(GroupOperation) && tagByte <= byte(GroupDocument)) {
			m.Groups = append(m.Groups, AttributeGroup{Tag: GroupTag(tagByte)})
			cur = &m.Groups[len(m.Groups)-1]
			continue
		}

		name, err := br.wireBytes()
		if err != nil {
			return nil, err
		}
		valBytes, err := br.wireBytes()
		if err != nil {
			return nil, err
		}
		wt := wireTag(tagByte)
		v, skip, derr := decodeValue(wt, valBytes, &br)
		if derr != nil {
			return nil, derr
		}
		if skip {
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("ipp: attribute %q outside any group", name)
		}
		if len(name) == 0 && len(cur.Attributes) > 0 {
			last := &cur.Attributes[len(cur.Attributes)-1]
			last.Values = append(last.Values, v)
		} else {
			cur.Attributes = append(cur.Attributes, Attribute{Name: string(name), Values: []Value{v}})
		}
	}

	rest, _ := io.ReadAll(br.r)
	m.Data = rest
	return m, nil
}

func decodeValue(wt wireTag, raw []byte, br *bufReader) (Value, bool, error) {
	switch wt {
	case wireEndCollection:
		return Value{}, true, nil
	case wireBeginCollection:
		coll, err := decodeCollectionMembers(br)
		if err != nil {
			return Value{}, false, err
		}
		return Value{Tag: TagCollection, Collection: coll}, false, nil
	case wireInteger, wireEnum, wireRangeOfInteger:
		if len(raw) < 4 {
			return Value{}, false, fmt.Errorf("ipp: short integer value")
		}
		i := int32(binary.BigEndian.Uint32(raw[0:4]))
		tag := TagInteger
		if wt == wireEnum {
			tag = TagEnum
		}
		return Value{Tag: tag, Int: i}, false, nil
	case wireBoolean:
		b := len(raw) > 0 && raw[0] != 0
		return Value{Tag: TagBoolean, Bool: b}, false, nil
	case wireResolution:
		if len(raw) < 9 {
			return Value{}, false, fmt.Errorf("ipp: short resolution value")
		}
		x := int32(binary.BigEndian.Uint32(raw[0:4]))
		y := int32(binary.BigEndian.Uint32(raw[4:8]))
		units := ResolutionUnits(raw[8])
		return Value{Tag: TagResolution, Resolution: Resolution{X: x, Y: y, Units: units}}, false, nil
	case wireUnsupported, wireUnknown, wireNoValue:
		return Value{Tag: TagOutOfBand}, false, nil
	default:
		return Value{Tag: wireTagToValueTag(wt), String: string(raw)}, false, nil
	}
}

// decodeCollectionMembers reads memberAttrName/value pairs until it sees the
// matching end-collection delimiter (which decodeValue signals via skip=true
// by returning early from the caller loop — here we read directly since
// collection members are not separated by group delimiters).
func decodeCollectionMembers(br *bufReader) ([]Attribute, error) {
	var members []Attribute
	for {
		tagByte, err := br.byte()
		if err != nil {
			return nil, err
		}
		if wireTag(tagByte) == wireEndCollection {
			if _, err := br.wireBytes(); err != nil {
				return nil, err
			}
			if _, err := br.wireBytes(); err != nil {
				return nil, err
			}
			return members, nil
		}
		if wireTag(tagByte) != wireMemberAttrName {
			return nil, fmt.Errorf("ipp: malformed collection member")
		}
		if _, err := br.wireBytes(); err != nil { // zero-length outer name
			return nil, err
		}
		memberName, err := br.wireBytes()
		if err != nil {
			return nil, err
		}
		valTagByte, err := br.byte()
		if err != nil {
			return nil, err
		}
		if _, err := br.wireBytes(); err != nil { // zero-length value name
			return nil, err
		}
		valBytes, err := br.wireBytes()
		if err != nil {
			return nil, err
		}
		v, _, err := decodeValue(wireTag(valTagByte), valBytes, br)
		if err != nil {
			return nil, err
		}
		members = append(members, Attribute{Name: string(memberName), Values: []Value{v}})
	}
}

// bufReader is a minimal byte/uint16-length-prefixed reader; io.Reader
// already buffers at the http.Response.Body layer so no extra buffering is
// added here.
type bufReader struct {
	r io.Reader
}

func (b bufReader) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b bufReader) byte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b bufReader) wireBytes() ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(b.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(b.r, out); err != nil {
		return nil, err
	}
	return out, nil
}
