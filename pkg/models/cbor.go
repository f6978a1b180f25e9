package models

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/workledger/workledger/pkg/constants"
)

// CBOR modes shared by the key-value drivers. Times keep nanoseconds and carry
// tag 0 so they decode back into time.Time inside untyped values too.
var (
	cborEnc = mustEncMode()
	cborDec = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		Sort:    cbor.SortCanonical,
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		TimeTagToAny: cbor.TimeTagToTime,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// MarshalCBOR encodes an entity. Field names follow the JSON tags.
func MarshalCBOR(e Entity) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entity", constants.ErrInvalidEntity)
	}
	return cborEnc.Marshal(e)
}

// UnmarshalCBOR decodes an entity of the given kind.
func UnmarshalCBOR(kind Kind, data []byte) (Entity, error) {
	e, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := cborDec.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return e, nil
}
