package model

import "github.com/tinylib/msgp/msgp"

// HTTPDocument is a full cached HTTP response — status, headers, and body —
// as stored under SecureCache's ultra-fast keys. It hand-implements msgp.Marshaler/msgp.Unmarshaler so a cache
// hit replays exactly what the real handler would have written, as a single
// compact binary frame instead of a bare JSON body.
type HTTPDocument struct {
	Status int
	Header map[string][]string
	Body   []byte
}

// MarshalMsg implements msgp.Marshaler.
func (d *HTTPDocument) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendMapHeader(b, 3)
	o = msgp.AppendString(o, "status")
	o = msgp.AppendInt(o, d.Status)
	o = msgp.AppendString(o, "header")
	o = msgp.AppendMapHeader(o, uint32(len(d.Header)))
	for k, vs := range d.Header {
		o = msgp.AppendString(o, k)
		o = msgp.AppendArrayHeader(o, uint32(len(vs)))
		for _, v := range vs {
			o = msgp.AppendString(o, v)
		}
	}
	o = msgp.AppendString(o, "body")
	o = msgp.AppendBytes(o, d.Body)
	return o, nil
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (d *HTTPDocument) UnmarshalMsg(bts []byte) ([]byte, error) {
	n, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for i := uint32(0); i < n; i++ {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, err
		}
		switch field {
		case "status":
			d.Status, bts, err = msgp.ReadIntBytes(bts)
		case "header":
			var hn uint32
			hn, bts, err = msgp.ReadMapHeaderBytes(bts)
			if err != nil {
				return bts, err
			}
			d.Header = make(map[string][]string, hn)
			for j := uint32(0); j < hn; j++ {
				var key string
				key, bts, err = msgp.ReadStringBytes(bts)
				if err != nil {
					return bts, err
				}
				var an uint32
				an, bts, err = msgp.ReadArrayHeaderBytes(bts)
				if err != nil {
					return bts, err
				}
				vals := make([]string, an)
				for k := uint32(0); k < an; k++ {
					vals[k], bts, err = msgp.ReadStringBytes(bts)
					if err != nil {
						return bts, err
					}
				}
				d.Header[key] = vals
			}
		case "body":
			d.Body, bts, err = msgp.ReadBytesBytes(bts, nil)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, err
		}
	}
	return bts, nil
}
