// Package command implements the command/response engine of spec §4.C:
// every nImO process exposes a command port, a TCP (and optionally UDP)
// listener speaking a fixed request/response contract built on top of
// package message. Grounded on the teacher's minicli (handler
// registration, dispatch, Responses) generalized from minicli's
// pattern-matched CLI grammar to nImO's literal requestKey table, and on
// ron's bounded worker handling of concurrent client connections.
package command

import "github.com/opendragon/nimo/internal/value"

// Request is the parsed form of `[ requestKey:string, arg0, arg1, … ]`.
type Request struct {
	Key  string
	Args []value.Value
}

// ToValue packs the request back into its array wire form.
func (r Request) ToValue() value.Value {
	elems := make([]value.Value, 0, len(r.Args)+1)
	elems = append(elems, value.NewString(r.Key))
	elems = append(elems, r.Args...)
	return value.NewArray(elems)
}

// RequestFromValue parses the array wire form of a request.
func RequestFromValue(v value.Value) (Request, error) {
	arr, ok := v.AsArray()
	if !ok || len(arr) == 0 {
		return Request{}, Fail(DecodeFailed, "request is not a non-empty array")
	}
	key, ok := arr[0].AsString()
	if !ok {
		return Request{}, Fail(DecodeFailed, "request key is not a string")
	}
	return Request{Key: key, Args: arr[1:]}, nil
}

// Response is the parsed form of `[ responseKey:string, ok:logical,
// payload?, failureReason?:string ]`.
type Response struct {
	Key           string
	OK            bool
	Payload       *value.Value
	FailureReason string
}

// ToValue packs the response into its array wire form. The payload slot
// is omitted when nil; failureReason is only emitted when !OK.
func (r Response) ToValue() value.Value {
	elems := []value.Value{
		value.NewString(r.Key),
		value.NewLogical(r.OK),
	}
	if r.Payload != nil {
		elems = append(elems, *r.Payload)
	}
	if !r.OK {
		elems = append(elems, value.NewString(r.FailureReason))
	}
	return value.NewArray(elems)
}

// ResponseFromValue parses the array wire form of a response. Payload
// presence is inferred positionally: if !ok, the arg immediately
// following ok is the failureReason; if ok, any remaining arg is the
// payload.
func ResponseFromValue(v value.Value) (Response, error) {
	arr, ok := v.AsArray()
	if !ok || len(arr) < 2 {
		return Response{}, Fail(DecodeFailed, "response is not an array of at least 2 elements")
	}
	key, ok := arr[0].AsString()
	if !ok {
		return Response{}, Fail(DecodeFailed, "response key is not a string")
	}
	okFlag, ok := arr[1].AsBool()
	if !ok {
		return Response{}, Fail(DecodeFailed, "response ok flag is not logical")
	}

	resp := Response{Key: key, OK: okFlag}

	if !okFlag {
		if len(arr) >= 3 {
			if reason, ok := arr[2].AsString(); ok {
				resp.FailureReason = reason
			}
		}
		return resp, nil
	}

	if len(arr) >= 3 {
		p := arr[2]
		resp.Payload = &p
	}
	return resp, nil
}

// AsFailure reconstructs the typed Failure a failed response carries, or
// nil if the response succeeded. Proxies use this to turn a wire-level
// failureReason back into a Go error without the caller parsing strings
// (spec §7: "a proxy ... returns a typed result with a status half that
// mirrors the server's failureReason").
func (r Response) AsFailure() *Failure {
	if r.OK {
		return nil
	}
	return ParseFailureReason(r.FailureReason)
}

// ResponseKey derives the "=" response marker from a request key,
// stripping the "?" / "." query/command suffix convention (spec §4.C:
// "the engine does not interpret the suffix; it is a convention for
// readers").
func ResponseKey(requestKey string) string {
	if requestKey == "" {
		return "="
	}
	base := requestKey[:len(requestKey)-1]
	return base + "="
}
