package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec names accepted by NewCodec.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Codec serialises samples for the wire.
type Codec interface {
	// Name returns the codec name used in configuration.
	Name() string

	// ContentType is sent as the MQTT v5 content-type property.
	ContentType() string

	Encode(s Sample) ([]byte, error)
	Decode(data []byte) (Sample, error)
}

// NewCodec returns the codec registered under name. An empty name selects
// JSON.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return jsonCodec{}, nil
	case CodecCBOR:
		return cborCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// jsonCodec produces {"d":1,"t":14.9,"h":0}.
type jsonCodec struct{}

func (jsonCodec) Name() string        { return CodecJSON }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(s Sample) ([]byte, error) {
	return json.Marshal(s)
}

func (jsonCodec) Decode(data []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return s, nil
}

// cborEncMode produces deterministic output using the shortest float width
// that round-trips exactly.
var cborEncMode cbor.EncMode

var cborDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		ShortestFloat: cbor.ShortestFloat16,
		IndefLength:   cbor.IndefLengthForbidden,
	}
	cborEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create telemetry CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	cborDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create telemetry CBOR decoder mode: %v", err))
	}
}

type cborCodec struct{}

func (cborCodec) Name() string        { return CodecCBOR }
func (cborCodec) ContentType() string { return "application/cbor" }

func (cborCodec) Encode(s Sample) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

func (cborCodec) Decode(data []byte) (Sample, error) {
	var s Sample
	if err := cborDecMode.Unmarshal(data, &s); err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return s, nil
}
