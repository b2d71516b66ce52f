package device

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

// The camera's control plane is XML-RPC over HTTP, one endpoint per remote
// object (device root, session, edit). This file implements the small subset
// of the protocol the node needs: scalar and struct/array values, and fault
// decoding into *Error.

const rpcCallTimeout = 10 * time.Second

type rpcClient struct {
	http *http.Client
}

func newRPCClient() *rpcClient {
	return &rpcClient{http: &http.Client{Timeout: rpcCallTimeout}}
}

// call invokes method on the XML-RPC endpoint at url. A <fault> response is
// returned as *Error with the device's fault code.
func (c *rpcClient) call(url, method string, params ...interface{}) (interface{}, error) {
	body, err := marshalCall(method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", method, err)
	}

	resp, err := c.http.Post(url, "text/xml", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s call failed: unexpected HTTP status %d", method, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}
	return parseResponse(data)
}

func marshalCall(method string, params []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&buf, []byte(method)); err != nil {
		return nil, err
	}
	buf.WriteString("</methodName><params>")
	for _, p := range params {
		buf.WriteString("<param>")
		if err := writeValue(&buf, p); err != nil {
			return nil, err
		}
		buf.WriteString("</param>")
	}
	buf.WriteString("</params></methodCall>")
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v interface{}) error {
	buf.WriteString("<value>")
	switch t := v.(type) {
	case string:
		buf.WriteString("<string>")
		if err := xml.EscapeText(buf, []byte(t)); err != nil {
			return err
		}
		buf.WriteString("</string>")
	case int:
		fmt.Fprintf(buf, "<int>%d</int>", t)
	case bool:
		b := 0
		if t {
			b = 1
		}
		fmt.Fprintf(buf, "<boolean>%d</boolean>", b)
	case float64:
		fmt.Fprintf(buf, "<double>%g</double>", t)
	default:
		return fmt.Errorf("unsupported XML-RPC parameter type %T", v)
	}
	buf.WriteString("</value>")
	return nil
}

// xmlValue mirrors the <value> element. Exactly one member is set.
type xmlValue struct {
	Raw     string     `xml:",chardata"`
	String  *string    `xml:"string"`
	Int     *int       `xml:"int"`
	I4      *int       `xml:"i4"`
	Boolean *string    `xml:"boolean"`
	Double  *float64   `xml:"double"`
	Struct  *xmlStruct `xml:"struct"`
	Array   *xmlArray  `xml:"array"`
}

type xmlStruct struct {
	Members []xmlMember `xml:"member"`
}

type xmlMember struct {
	Name  string   `xml:"name"`
	Value xmlValue `xml:"value"`
}

type xmlArray struct {
	Values []xmlValue `xml:"data>value"`
}

type xmlResponse struct {
	XMLName xml.Name   `xml:"methodResponse"`
	Params  []xmlValue `xml:"params>param>value"`
	Fault   *xmlValue  `xml:"fault>value"`
}

func parseResponse(data []byte) (interface{}, error) {
	var resp xmlResponse
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("malformed XML-RPC response: %w", err)
	}

	if resp.Fault != nil {
		return nil, faultToError(resp.Fault)
	}
	if len(resp.Params) == 0 {
		return nil, nil
	}
	return decodeValue(&resp.Params[0]), nil
}

func faultToError(v *xmlValue) error {
	fault, ok := decodeValue(v).(map[string]interface{})
	if !ok {
		return fmt.Errorf("malformed XML-RPC fault")
	}
	code := 0
	if c, ok := fault["faultCode"].(int); ok {
		code = c
	}
	msg := "unknown device fault"
	if s, ok := fault["faultString"].(string); ok {
		msg = s
	}
	return &Error{Code: code, Msg: msg}
}

func decodeValue(v *xmlValue) interface{} {
	switch {
	case v.String != nil:
		return *v.String
	case v.Int != nil:
		return *v.Int
	case v.I4 != nil:
		return *v.I4
	case v.Boolean != nil:
		return *v.Boolean == "1" || *v.Boolean == "true"
	case v.Double != nil:
		return *v.Double
	case v.Struct != nil:
		m := make(map[string]interface{}, len(v.Struct.Members))
		for i := range v.Struct.Members {
			m[v.Struct.Members[i].Name] = decodeValue(&v.Struct.Members[i].Value)
		}
		return m
	case v.Array != nil:
		vals := make([]interface{}, len(v.Array.Values))
		for i := range v.Array.Values {
			vals[i] = decodeValue(&v.Array.Values[i])
		}
		return vals
	default:
		// Untyped <value> content is a string per the XML-RPC spec.
		return v.Raw
	}
}
