// Package rpcenc implements the opaque argument/result codec used by the
// RPC and ASYNC_RPC flavors.
//
// The wire contract only requires that the positional-argument tuple and
// keyword-argument mapping be encoded in a language-agnostic serialized
// form agreed by both ends; mixing formats across a deployment is not
// supported. This package pins that choice to MessagePack
// (github.com/vmihailenco/msgpack/v5) rather than a language-specific
// object-graph serializer, then base64-encodes the MessagePack bytes so
// they embed as plain JSON strings inside the RPC frame and result
// envelope.
package rpcenc

import (
	"encoding/base64"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame is the JSON shape of an RPC request body: {"args": <base64>,
// "kwargs": <base64>}, each wrapping a MessagePack-encoded blob.
type Frame struct {
	Args   string `json:"args"`
	Kwargs string `json:"kwargs"`
}

// Result is the JSON shape of a successful RPC/ASYNC_RPC payload once
// unwrapped from its envelope: {"payload": <base64>}.
type Result struct {
	Payload string `json:"payload"`
}

// EncodeFrame serializes a positional-argument slice and keyword-argument
// map into a Frame ready to embed in a request body.
func EncodeFrame(args []any, kwargs map[string]any) (Frame, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	encodedArgs, err := encodeBlob(args)
	if err != nil {
		return Frame{}, fmt.Errorf("rpcenc: encode args: %w", err)
	}
	encodedKwargs, err := encodeBlob(kwargs)
	if err != nil {
		return Frame{}, fmt.Errorf("rpcenc: encode kwargs: %w", err)
	}
	return Frame{Args: encodedArgs, Kwargs: encodedKwargs}, nil
}

// DecodeFrame is the inverse of EncodeFrame. It enforces the protocol's
// shape requirements: the decoded args must be a sequence and the decoded
// kwargs must be a mapping, or the frame is malformed.
func DecodeFrame(f Frame) (args []any, kwargs map[string]any, err error) {
	var rawArgs any
	if err := decodeBlob(f.Args, &rawArgs); err != nil {
		return nil, nil, fmt.Errorf("rpcenc: decode args: %w", err)
	}
	sequence, ok := rawArgs.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("rpcenc: args must decode to a sequence, got %T", rawArgs)
	}

	var rawKwargs any
	if err := decodeBlob(f.Kwargs, &rawKwargs); err != nil {
		return nil, nil, fmt.Errorf("rpcenc: decode kwargs: %w", err)
	}
	mapping, ok := rawKwargs.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("rpcenc: kwargs must decode to a mapping, got %T", rawKwargs)
	}

	return sequence, mapping, nil
}

// EncodeResult wraps an RPC return value into a Result payload.
func EncodeResult(value any) (Result, error) {
	payload, err := encodeBlob(value)
	if err != nil {
		return Result{}, fmt.Errorf("rpcenc: encode result: %w", err)
	}
	return Result{Payload: payload}, nil
}

// DecodeResult is the inverse of EncodeResult, unmarshaling the payload
// into an untyped value.
func DecodeResult(r Result) (any, error) {
	var value any
	if err := decodeBlob(r.Payload, &value); err != nil {
		return nil, fmt.Errorf("rpcenc: decode result: %w", err)
	}
	return value, nil
}

func encodeBlob(v any) (string, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeBlob(encoded string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(raw, out)
}
