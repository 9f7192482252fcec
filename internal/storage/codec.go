package storage

import (
	"github.com/fxamacker/cbor/v2"
)

// Events are stored as deterministic CBOR so identical events always
// produce identical bytes. Addresses encode as their hex text form.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshalEvent(e Event) ([]byte, error) {
	return encMode.Marshal(e)
}

func unmarshalEvent(data []byte) (Event, error) {
	var e Event
	err := decMode.Unmarshal(data, &e)
	return e, err
}
