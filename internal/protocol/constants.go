package protocol

import "fmt"

// Format names a wire serialization for Message.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMsgpack  Format = "msgpack"
	FormatCBOR     Format = "cbor"
	FormatProtobuf Format = "protobuf"
)

const (
	FieldFile     = "file"
	FieldFileName = "fileName"
)

// Formats lists every supported format, default first.
func Formats() []Format {
	return []Format{FormatJSON, FormatMsgpack, FormatCBOR, FormatProtobuf}
}

func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatJSON, nil
	}
	for _, f := range Formats() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown wire format %q", s)
}

func (f Format) String() string {
	return string(f)
}
