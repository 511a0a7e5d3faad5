package skein

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Signals for skein events.
var (
	SignalSerializerCreated   = capitan.NewSignal("skein.serializer.created", "Serializer instantiated")
	SignalSerializeStart      = capitan.NewSignal("skein.serialize.start", "Serialize operation beginning")
	SignalSerializeComplete   = capitan.NewSignal("skein.serialize.complete", "Serialize operation finished")
	SignalExtractComplete     = capitan.NewSignal("skein.extract.complete", "Extract operation finished")
	SignalWriteComplete       = capitan.NewSignal("skein.write.complete", "Token stream written")
	SignalReadComplete        = capitan.NewSignal("skein.read.complete", "Token stream read")
	SignalCloneComplete       = capitan.NewSignal("skein.clone.complete", "Deep clone finished")
	SignalProviderResolved    = capitan.NewSignal("skein.provider.resolved", "Provider built and cached for a type")
	SignalMarshalComplete     = capitan.NewSignal("skein.marshal.complete", "Serializer marshal finished")
	SignalUnmarshalComplete   = capitan.NewSignal("skein.unmarshal.complete", "Serializer unmarshal finished")
	SignalFingerprintComplete = capitan.NewSignal("skein.fingerprint.complete", "Serializer fingerprint finished")
)

// Keys for typed event data.
var (
	KeyTypeName    = capitan.NewStringKey("type_name")
	KeyProvider    = capitan.NewStringKey("provider")
	KeyCompression = capitan.NewStringKey("compression")
	KeySize        = capitan.NewIntKey("size")
	KeyObjects     = capitan.NewIntKey("objects")
	KeyStrings     = capitan.NewIntKey("strings")
	KeyDuration    = capitan.NewDurationKey("duration")
	KeyError       = capitan.NewErrorKey("error")
)

// emitSerializerCreated emits an event when a serializer is created.
func emitSerializerCreated(ctx context.Context, typeName, compression string) {
	capitan.Emit(ctx, SignalSerializerCreated,
		KeyTypeName.Field(typeName),
		KeyCompression.Field(compression),
	)
}

// emitSerializeStart emits an event when a top-level serialize begins.
func emitSerializeStart(ctx context.Context, typeName string) {
	capitan.Emit(ctx, SignalSerializeStart,
		KeyTypeName.Field(typeName),
	)
}

// emitSerializeComplete emits an event when a top-level serialize finishes.
func emitSerializeComplete(ctx context.Context, typeName string, duration time.Duration, err error) {
	fields := completeFields(typeName, duration, err)
	if err != nil {
		capitan.Error(ctx, SignalSerializeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalSerializeComplete, fields...)
	}
}

// emitExtractComplete emits an event when a top-level extract finishes.
func emitExtractComplete(sc *SerializationContext, typeName string, duration time.Duration, err error) {
	fields := completeFields(typeName, duration, err,
		KeyObjects.Field(sc.ObjectCount()),
	)
	if err != nil {
		capitan.Error(sc.Context(), SignalExtractComplete, fields...)
	} else {
		capitan.Emit(sc.Context(), SignalExtractComplete, fields...)
	}
}

// emitWriteComplete emits an event when a token stream has been written.
func emitWriteComplete(sc *SerializationContext, typeName string, size int64, duration time.Duration, err error) {
	fields := completeFields(typeName, duration, err, tableFields(sc, size)...)
	if err != nil {
		capitan.Error(sc.Context(), SignalWriteComplete, fields...)
	} else {
		capitan.Emit(sc.Context(), SignalWriteComplete, fields...)
	}
}

// emitReadComplete emits an event when a token stream has been read.
func emitReadComplete(sc *SerializationContext, typeName string, size int64, duration time.Duration, err error) {
	fields := completeFields(typeName, duration, err, tableFields(sc, size)...)
	if err != nil {
		capitan.Error(sc.Context(), SignalReadComplete, fields...)
	} else {
		capitan.Emit(sc.Context(), SignalReadComplete, fields...)
	}
}

// emitCloneComplete emits an event when a deep clone finishes.
func emitCloneComplete(sc *SerializationContext, typeName string, duration time.Duration, err error) {
	fields := completeFields(typeName, duration, err,
		KeyObjects.Field(sc.ObjectCount()),
	)
	if err != nil {
		capitan.Error(sc.Context(), SignalCloneComplete, fields...)
	} else {
		capitan.Emit(sc.Context(), SignalCloneComplete, fields...)
	}
}

// emitProviderResolved emits an event when the registry builds a provider.
func emitProviderResolved(ctx context.Context, typeName, how string) {
	capitan.Emit(ctx, SignalProviderResolved,
		KeyTypeName.Field(typeName),
		KeyProvider.Field(how),
	)
}

// emitMarshalComplete emits an event when a serializer marshal finishes.
func emitMarshalComplete(ctx context.Context, typeName, compression string, size int, duration time.Duration, err error) {
	fields := completeFields(typeName, duration, err,
		KeyCompression.Field(compression),
		KeySize.Field(size),
	)
	if err != nil {
		capitan.Error(ctx, SignalMarshalComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalMarshalComplete, fields...)
	}
}

// emitUnmarshalComplete emits an event when a serializer unmarshal finishes.
func emitUnmarshalComplete(ctx context.Context, typeName string, size int, duration time.Duration, err error) {
	fields := completeFields(typeName, duration, err,
		KeySize.Field(size),
	)
	if err != nil {
		capitan.Error(ctx, SignalUnmarshalComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalUnmarshalComplete, fields...)
	}
}

// emitFingerprintComplete emits an event when a serializer fingerprint finishes.
func emitFingerprintComplete(ctx context.Context, typeName string, duration time.Duration, err error) {
	fields := completeFields(typeName, duration, err)
	if err != nil {
		capitan.Error(ctx, SignalFingerprintComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalFingerprintComplete, fields...)
	}
}

func completeFields(typeName string, duration time.Duration, err error, extra ...capitan.Field) []capitan.Field {
	fields := []capitan.Field{
		KeyTypeName.Field(typeName),
		KeyDuration.Field(duration),
	}
	fields = append(fields, extra...)
	if err != nil {
		fields = append(fields, KeyError.Field(err))
	}
	return fields
}

func tableFields(sc *SerializationContext, size int64) []capitan.Field {
	return []capitan.Field{
		KeySize.Field(int(size)),
		KeyObjects.Field(sc.ObjectCount()),
		KeyStrings.Field(sc.StringCount()),
	}
}
