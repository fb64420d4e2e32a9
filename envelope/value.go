package envelope

import (
	"fmt"

	"github.com/Neumenon/pserial/pserial"
)

// EncodeValue serializes v with c and writes it as one frame.
func EncodeValue(w *Writer, c *pserial.Codec, v *pserial.Value) error {
	payload, err := c.AppendEncode(nil, v)
	if err != nil {
		return err
	}
	return w.Write(payload)
}

// DecodeValue parses the payload of f with c.
func DecodeValue(f *Frame, c *pserial.Codec) (*pserial.Value, error) {
	v, err := c.DecodeBytes(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: frame %d: %w", f.Seq, err)
	}
	return v, nil
}

// ReadValues reads every frame from r, checks ordering and decodes each
// payload with c.
func ReadValues(r *Reader, c *pserial.Codec) ([]*pserial.Value, error) {
	tracker := NewTracker()
	frames, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	values := make([]*pserial.Value, 0, len(frames))
	for _, f := range frames {
		if err := tracker.Process(f); err != nil {
			return nil, err
		}
		v, err := DecodeValue(f, c)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
