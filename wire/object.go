package wire

import (
	"bytes"
	"io"
	"math"
)

// HeightUnconfirmed is the declared height of objects that are not part of
// any known block. It sorts after every real height.
const HeightUnconfirmed = math.MaxUint32

// Object is a message record held by the inventory: a framed payload plus the
// relay metadata the queue orders on.
type Object struct {
	// Type is the classification of the message command.
	Type ObjectType

	// Height is the declared confirmation height, HeightUnconfirmed for
	// loose objects.
	Height uint32

	// Sent is set once the object has been transmitted to a peer.
	Sent bool

	// Payload is the raw message payload, without the header.
	Payload []byte
}

// NewObject returns an unsent object of the given type and height which takes
// ownership of payload.
func NewObject(t ObjectType, height uint32, payload []byte) *Object {
	return &Object{
		Type:    t,
		Height:  height,
		Payload: payload,
	}
}

// Length returns the total number of bytes the object occupies on the wire,
// header included.
func (obj *Object) Length() int {
	return MessageHeaderSize + len(obj.Payload)
}

// IdentityLength returns how many leading bytes of the payload contribute to
// the object's identity: the header for a block, everything otherwise.
func (obj *Object) IdentityLength() int {
	if obj.Type == ObjectTypeBlock {
		return BlockHeaderLen
	}
	return len(obj.Payload)
}

// InventoryHash returns the double SHA-256 of the identity bytes of the
// object. A block payload shorter than a block header cannot be identified and
// yields a MessageError wrapping ErrTruncated.
func (obj *Object) InventoryHash() (*Hash, error) {
	n := obj.IdentityLength()
	if n > len(obj.Payload) {
		return nil, truncatedError("InventoryHash", 0, n, len(obj.Payload))
	}
	hash := DoubleHashH(obj.Payload[:n])
	return &hash, nil
}

// Command returns the protocol command the object is framed under.
func (obj *Object) Command() string {
	return obj.Type.String()
}

// Encode writes the object and its metadata to w. This is the storage format
// used by database drivers, not a network message.
func (obj *Object) Encode(w io.Writer) error {
	err := writeElements(w, uint8(obj.Type), obj.Height, obj.Sent)
	if err != nil {
		return err
	}
	return writeVarBytes(w, obj.Payload)
}

// Decode reads an object previously written by Encode from r.
func (obj *Object) Decode(r io.Reader) error {
	var t uint8
	err := readElements(r, &t, &obj.Height, &obj.Sent)
	if err != nil {
		return err
	}
	obj.Type = ObjectType(t)

	obj.Payload, err = readVarBytes(r, MaxMessagePayload, "object payload")
	return err
}

// Bytes returns the storage encoding of the object.
func (obj *Object) Bytes() []byte {
	var b bytes.Buffer
	obj.Encode(&b)
	return b.Bytes()
}

// DecodeObject decodes the storage encoding of an object.
func DecodeObject(b []byte) (*Object, error) {
	obj := &Object{}
	err := obj.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return obj, nil
}
