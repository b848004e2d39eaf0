package resp

import (
	"bytes"
	"fmt"
)

// Encode serialises a Frame into its RESP wire form. It never fails: any
// Frame constructed through this package's New* helpers is always
// well-formed by construction.
func Encode(f *Frame) []byte {
	var buf bytes.Buffer
	encodeInto(&buf, f)
	return buf.Bytes()
}

func encodeInto(buf *bytes.Buffer, f *Frame) {
	if f == nil {
		buf.WriteString("$-1\r\n")
		return
	}
	switch f.Type {
	case SimpleString:
		//1.- Simple strings are not binary safe; callers must avoid embedded CRLF.
		buf.WriteByte('+')
		buf.WriteString(f.Str)
		buf.WriteString("\r\n")
	case Error:
		buf.WriteByte('-')
		buf.WriteString(f.Str)
		buf.WriteString("\r\n")
	case Integer:
		buf.WriteByte(':')
		buf.WriteString(formatInt(f.Int))
		buf.WriteString("\r\n")
	case BulkString:
		if f.BulkNull {
			buf.WriteString("$-1\r\n")
			return
		}
		buf.WriteByte('$')
		buf.WriteString(formatInt(int64(len(f.Bulk))))
		buf.WriteString("\r\n")
		buf.Write(f.Bulk)
		buf.WriteString("\r\n")
	case Array:
		if f.ArrayNull {
			buf.WriteString("*-1\r\n")
			return
		}
		buf.WriteByte('*')
		buf.WriteString(formatInt(int64(len(f.Items))))
		buf.WriteString("\r\n")
		for _, item := range f.Items {
			//2.- Recurse so nested arrays (e.g. XRANGE replies) encode correctly.
			encodeInto(buf, item)
		}
	default:
		panic(fmt.Sprintf("resp: unknown frame type %q", byte(f.Type)))
	}
}
