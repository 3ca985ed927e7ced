package backend

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// streamContentType is the media type of a session output stream: a CBOR
// sequence (RFC 8742) of Event values.
const streamContentType = "application/cbor-seq"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("backend: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("backend: CBOR decoder initialization failed: " + err.Error())
	}
}

func newEventEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func newEventDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
