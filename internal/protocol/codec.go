package protocol

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/adamavenir/coord/internal/coorderr"
)

// ContentTypeNamespace is the `<ns>` segment of the coordination
// content-type. Overridable at init time by the binary embedding this
// package, so a deployment can brand its own vendor string.
var ContentTypeNamespace = "coord"

// BaseContentType returns the uncompressed content-type string.
func BaseContentType() string {
	return fmt.Sprintf("application/vnd.%s.coordination+json", ContentTypeNamespace)
}

// GzipContentType returns the content-type string for a gzip-compressed body.
func GzipContentType() string {
	return BaseContentType() + "; compression=gzip"
}

// envelope is the on-wire shape: the type discriminator plus the variant's
// own fields, flattened into one JSON object.
type envelope struct {
	Type Kind `json:"type"`
}

// Serialize encodes msg as a JSON object carrying its type discriminator,
// optionally gzip-compressing the result. It returns the body bytes and the
// content-type string to send alongside them.
func Serialize(msg Message, compress bool) (body []byte, contentType string, err error) {
	fields, err := json.Marshal(msg)
	if err != nil {
		return nil, "", coorderr.Wrap(coorderr.KindCodecMalformed, "marshal message body", err)
	}

	merged, err := mergeType(msg.Kind(), fields)
	if err != nil {
		return nil, "", err
	}

	if !compress {
		return merged, BaseContentType(), nil
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(merged); err != nil {
		return nil, "", coorderr.Wrap(coorderr.KindCodecMalformed, "gzip message body", err)
	}
	if err := gw.Close(); err != nil {
		return nil, "", coorderr.Wrap(coorderr.KindCodecMalformed, "close gzip writer", err)
	}
	return buf.Bytes(), GzipContentType(), nil
}

// mergeType re-marshals a variant's fields with the type discriminator
// added as one more field; encoding/json writes the keys of the merged
// object in sorted order.
func mergeType(kind Kind, fields []byte) ([]byte, error) {
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(fields, &asMap); err != nil {
		return nil, coorderr.Wrap(coorderr.KindCodecMalformed, "decode message fields", err)
	}
	typeRaw, err := json.Marshal(kind)
	if err != nil {
		return nil, coorderr.Wrap(coorderr.KindCodecMalformed, "marshal type discriminator", err)
	}
	asMap["type"] = typeRaw
	merged, err := json.Marshal(asMap)
	if err != nil {
		return nil, coorderr.Wrap(coorderr.KindCodecMalformed, "marshal merged envelope", err)
	}
	return merged, nil
}

// Deserialize decodes body (optionally gzip-compressed per contentType) into
// a concrete Message. Unknown `type` values fail with KindCodecUnknownType;
// bodies that are not valid JSON or lack a `type` field fail with
// KindCodecMalformed. Both are meant to be treated as a skip by callers
// (internal/coordctx), not as a fatal error.
func Deserialize(body []byte, contentType string) (Message, error) {
	raw := body
	if strings.Contains(contentType, "compression=gzip") {
		gr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, coorderr.Wrap(coorderr.KindCodecMalformed, "open gzip reader", err)
		}
		defer gr.Close()
		decompressed, err := io.ReadAll(gr)
		if err != nil {
			return nil, coorderr.Wrap(coorderr.KindCodecMalformed, "decompress message body", err)
		}
		raw = decompressed
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, coorderr.Wrap(coorderr.KindCodecMalformed, "decode envelope", err)
	}
	if env.Type == "" {
		return nil, coorderr.New(coorderr.KindCodecMalformed, "envelope missing type field")
	}

	target, ok := newVariant(env.Type)
	if !ok {
		return nil, coorderr.Newf(coorderr.KindCodecUnknownType, "unknown message type %q", env.Type)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, coorderr.Wrap(coorderr.KindCodecMalformed, fmt.Sprintf("decode %s fields", env.Type), err)
	}
	return derefMessage(target), nil
}

// newVariant allocates a zero-valued pointer to the struct for kind.
func newVariant(kind Kind) (any, bool) {
	switch kind {
	case KindTaskAssign:
		return &TaskAssign{}, true
	case KindTaskAck:
		return &TaskAck{}, true
	case KindProgress:
		return &Progress{}, true
	case KindResult:
		return &Result{}, true
	case KindIdle:
		return &Idle{}, true
	case KindQuestion:
		return &Question{}, true
	case KindAnswer:
		return &Answer{}, true
	case KindPermissionRequest:
		return &PermissionRequest{}, true
	case KindPermissionResponse:
		return &PermissionResponse{}, true
	case KindTerminate:
		return &Terminate{}, true
	default:
		return nil, false
	}
}

// derefMessage converts a pointer-to-variant back into the Message interface
// by value, matching the value receivers declared on each variant's Kind().
func derefMessage(target any) Message {
	switch v := target.(type) {
	case *TaskAssign:
		return *v
	case *TaskAck:
		return *v
	case *Progress:
		return *v
	case *Result:
		return *v
	case *Idle:
		return *v
	case *Question:
		return *v
	case *Answer:
		return *v
	case *PermissionRequest:
		return *v
	case *PermissionResponse:
		return *v
	case *Terminate:
		return *v
	default:
		panic(fmt.Sprintf("protocol: unhandled variant %T", target))
	}
}
