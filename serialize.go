package skein

import (
	"bytes"
	"fmt"
	"reflect"
	"time"
)

// Serialize turns value into a token within ctx. Complex values produce
// their properties lazily, so provider errors may surface only when the
// token is written or extracted.
func Serialize(value any, ctx *SerializationContext) (Token, error) {
	if ctx.depth > 0 {
		return ctx.Serialize(value)
	}
	typeName := fmt.Sprintf("%T", value)
	start := time.Now()
	emitSerializeStart(ctx.Context(), typeName)
	tok, err := ctx.Serialize(value)
	emitSerializeComplete(ctx.Context(), typeName, time.Since(start), err)
	return tok, err
}

// Extract rebuilds a T from tok within ctx.
func Extract[T any](tok Token, ctx *SerializationContext) (T, error) {
	var zero T
	if ctx.depth > 0 {
		rv, err := ctx.ExtractValue(tok, reflect.TypeFor[T]())
		if err != nil {
			return zero, err
		}
		out, _ := rv.Interface().(T)
		return out, nil
	}
	typeName := reflect.TypeFor[T]().String()
	start := time.Now()
	rv, err := ctx.ExtractValue(tok, reflect.TypeFor[T]())
	emitExtractComplete(ctx, typeName, time.Since(start), err)
	if err != nil {
		return zero, err
	}
	out, _ := rv.Interface().(T)
	return out, nil
}

// DeepClone copies value through its token form. The copy shares no
// identity-bearing value with the original but preserves aliasing and cycles
// among its own parts.
func DeepClone[T any](value T, ctx *SerializationContext) (T, error) {
	var zero T
	start := time.Now()
	typeName := reflect.TypeFor[T]().String()
	tok, err := ctx.SerializeValue(reflect.ValueOf(&value).Elem())
	if err != nil {
		emitCloneComplete(ctx, typeName, time.Since(start), err)
		return zero, err
	}
	rv, err := ctx.ExtractValue(tok, reflect.TypeFor[T]())
	emitCloneComplete(ctx, typeName, time.Since(start), err)
	if err != nil {
		return zero, err
	}
	out, _ := rv.Interface().(T)
	return out, nil
}

// Marshal serializes value and writes it as a complete stream.
func Marshal(value any, ctx *SerializationContext) ([]byte, error) {
	tok, err := Serialize(value, ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Write(&buf, tok, ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal reads a complete stream and rebuilds a T from it.
func Unmarshal[T any](data []byte, ctx *SerializationContext) (T, error) {
	tok, err := Read(bytes.NewReader(data), ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return Extract[T](tok, ctx)
}
