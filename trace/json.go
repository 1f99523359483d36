package trace

import (
	"io"
	"strconv"

	"github.com/joeycumines/wrenchsim/jsonenc"
)

// AppendJSON appends e's newline-delimited-JSON representation to dst,
// allocation-light in the same style as jsonenc's zerolog-derived
// AppendString helper.
func (e *Entry) AppendJSON(dst []byte) []byte {
	dst = append(dst, `{"kind":`...)
	dst = jsonenc.AppendString(dst, string(e.Kind))
	dst = append(dst, `,"time":`...)
	dst = strconv.AppendInt(dst, e.Time, 10)
	if e.JobID != "" {
		dst = append(dst, `,"job_id":`...)
		dst = jsonenc.AppendString(dst, e.JobID)
	}
	if e.ActionID != "" {
		dst = append(dst, `,"action_id":`...)
		dst = jsonenc.AppendString(dst, string(e.ActionID))
	}
	if e.Host != "" {
		dst = append(dst, `,"host":`...)
		dst = jsonenc.AppendString(dst, string(e.Host))
	}
	if e.FileID != "" {
		dst = append(dst, `,"file_id":`...)
		dst = jsonenc.AppendString(dst, e.FileID)
	}
	if e.Cause != nil {
		dst = append(dst, `,"cause":`...)
		dst = jsonenc.AppendString(dst, e.Cause.Error())
	}
	if e.Counterpart != nil {
		dst = append(dst, `,"counterpart_kind":`...)
		dst = jsonenc.AppendString(dst, string(e.Counterpart.Kind))
		dst = append(dst, `,"counterpart_time":`...)
		dst = strconv.AppendInt(dst, e.Counterpart.Time, 10)
	}
	dst = append(dst, '}')
	return dst
}

// WriteJSON writes entries to w as newline-delimited JSON, one Entry per
// line, in the order given (use Tracer.Entries or BuildFromCompoundJob's
// result to get them Time-ordered first).
func WriteJSON(w io.Writer, entries []*Entry) error {
	var buf []byte
	for _, e := range entries {
		buf = e.AppendJSON(buf[:0])
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
